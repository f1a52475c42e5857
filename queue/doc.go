// Package queue is the parent of mpmcdesc, the bounded multi-producer
// multi-consumer descriptor queue of spec.md §4.5 (C5): the sole mailbox
// between producers and the async worker. The fabric only ever needs one
// producer/consumer arity — every producer goroutine and the one worker
// goroutine both read and write the same ring — so, unlike a general queue
// library, this package carries a single implementation rather than
// separate mpmc/mpsc/spmc/spsc variants.
//
// mpmcdesc is grounded on Dmitry Vyukov's bounded MPMC queue
// (www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue),
// adapted from an unsafe.Pointer slot to an in-place descriptor.Descriptor
// per spec.md §3 ("Each slot: a sequence counter plus an in-place
// descriptor").
package queue
