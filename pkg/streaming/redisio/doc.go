/*
Package redisio moves chunks through Redis lists.

ListSink appends each delivered chunk to a list with RPUSH; ListSource pops
with BLPOP, so a stream written on one process arrives in order on another.
End of stream travels as an explicit sentinel value in the list, never as
an empty element, matching the rest of the library's explicit-EOF contract.

	sink, _ := redisio.NewListSink(redisio.Config{Redis: rdb, Key: "jobs", EndOnClose: true})
	dst := writable.New(sink, writable.DefaultConfig())

	src, _ := redisio.NewListSource(redisio.Config{Redis: rdb, Key: "jobs"})
	in := readable.FromSource(src, readable.DefaultConfig())
*/
package redisio
