package ports

// Pool hands out reusable instances of T.
type Pool[T any] interface {
	Get() T
	Return(item T)
	Clear()
	Count() int
}

// Clearer is anything holding reclaimable memory that can be dropped on
// demand, such as object pools during a memory emergency.
type Clearer interface {
	Clear()
}
