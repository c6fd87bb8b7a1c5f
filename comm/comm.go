// Package comm runs one goroutine per mesh partition and moves messages
// between them. It stands in for a message passing runtime: every rank runs
// the same program and the collectives must be called by all ranks in the
// same order.
package comm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const linkCapacity = 256

// Tags below zero are reserved for collectives.
const (
	tagReduce = -1 - iota
	tagBroadcast
	tagGather
	tagBarrier
)

var errAborted = errors.New("comm: rank aborted after a failure on another rank")

type message struct {
	tag  int
	data interface{}
}

type World struct {
	size  int
	links [][]chan message // links[from][to]
}

func NewWorld(size int) *World {
	if size < 1 {
		size = 1
	}
	return &World{size: size}
}

func (w *World) Size() int { return w.size }

func (w *World) open() {
	w.links = make([][]chan message, w.size)
	for from := range w.links {
		w.links[from] = make([]chan message, w.size)
		for to := range w.links[from] {
			w.links[from][to] = make(chan message, linkCapacity)
		}
	}
}

// Run executes fn on every rank concurrently and returns the first error.
// When one rank fails, ranks blocked in communication are released and
// return without a result.
func (w *World) Run(fn func(c *Comm) error) error {
	w.open()
	g, ctx := errgroup.WithContext(context.Background())
	for rank := 0; rank < w.size; rank++ {
		c := &Comm{rank: rank, world: w, done: ctx.Done()}
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec != errAborted {
						panic(rec)
					}
					err = errAborted
				}
			}()
			return fn(c)
		})
	}
	return g.Wait()
}

// Serial returns the communicator of a single rank world, usable without Run.
func Serial() *Comm {
	w := NewWorld(1)
	w.open()
	return &Comm{rank: 0, world: w}
}

type Comm struct {
	rank  int
	world *World
	done  <-chan struct{}
}

func (c *Comm) Rank() int { return c.rank }

func (c *Comm) Size() int { return c.world.size }

// Send posts a copy of data to rank to. Messages between a pair of ranks
// arrive in the order they were sent.
func (c *Comm) Send(to, tag int, data interface{}) {
	switch d := data.(type) {
	case []float64:
		data = append([]float64(nil), d...)
	case []int:
		data = append([]int(nil), d...)
	}
	select {
	case c.world.links[c.rank][to] <- message{tag: tag, data: data}:
	case <-c.done:
		panic(errAborted)
	}
}

// Recv blocks for the next message from rank from, which must carry tag.
func (c *Comm) Recv(from, tag int) interface{} {
	select {
	case msg := <-c.world.links[from][c.rank]:
		if msg.tag != tag {
			panic(fmt.Sprintf("comm: rank %d expected tag %d from rank %d, received %d",
				c.rank, tag, from, msg.tag))
		}
		return msg.data
	case <-c.done:
		panic(errAborted)
	}
}

func (c *Comm) RecvFloats(from, tag int) []float64 {
	if d := c.Recv(from, tag); d != nil {
		return d.([]float64)
	}
	return nil
}

func (c *Comm) RecvInts(from, tag int) []int {
	if d := c.Recv(from, tag); d != nil {
		return d.([]int)
	}
	return nil
}

func (c *Comm) Barrier() {
	c.AllGatherInts(nil)
}

// AllGatherFloats returns the contributions of every rank, indexed by rank.
func (c *Comm) AllGatherFloats(x []float64) (all [][]float64) {
	parts := c.allGather(x)
	all = make([][]float64, len(parts))
	for r, p := range parts {
		if p != nil {
			all[r] = append([]float64(nil), p.([]float64)...)
		}
	}
	return
}

func (c *Comm) AllGatherInts(x []int) (all [][]int) {
	parts := c.allGather(x)
	all = make([][]int, len(parts))
	for r, p := range parts {
		if p != nil {
			all[r] = append([]int(nil), p.([]int)...)
		}
	}
	return
}

func (c *Comm) allGather(x interface{}) (all []interface{}) {
	size := c.Size()
	if c.rank != 0 {
		c.Send(0, tagGather, x)
		return c.Recv(0, tagBroadcast).([]interface{})
	}
	all = make([]interface{}, size)
	all[0] = copyPayload(x)
	for r := 1; r < size; r++ {
		all[r] = c.Recv(r, tagGather)
	}
	for r := 1; r < size; r++ {
		c.Send(r, tagBroadcast, all)
	}
	return
}

func copyPayload(x interface{}) interface{} {
	switch d := x.(type) {
	case []float64:
		return append([]float64(nil), d...)
	case []int:
		return append([]int(nil), d...)
	}
	return x
}

// AllReduceSumSlice sums x elementwise over ranks. The summation runs in rank
// order on rank 0, so every rank receives bit-identical results.
func (c *Comm) AllReduceSumSlice(x []float64) (sum []float64) {
	return c.reduce(x, func(acc, v []float64) {
		for i := range acc {
			acc[i] += v[i]
		}
	})
}

func (c *Comm) AllReduceMaxSlice(x []float64) (mx []float64) {
	return c.reduce(x, func(acc, v []float64) {
		for i := range acc {
			acc[i] = max(acc[i], v[i])
		}
	})
}

func (c *Comm) reduce(x []float64, op func(acc, v []float64)) []float64 {
	if c.rank != 0 {
		c.Send(0, tagReduce, x)
		return c.RecvFloats(0, tagBroadcast)
	}
	acc := append([]float64(nil), x...)
	for r := 1; r < c.Size(); r++ {
		v := c.RecvFloats(r, tagReduce)
		if len(v) != len(acc) {
			panic(fmt.Sprintf("comm: reduction length %d from rank %d, expected %d", len(v), r, len(acc)))
		}
		op(acc, v)
	}
	for r := 1; r < c.Size(); r++ {
		c.Send(r, tagBroadcast, acc)
	}
	return acc
}

func (c *Comm) AllReduceSum(x float64) float64 {
	return c.AllReduceSumSlice([]float64{x})[0]
}

func (c *Comm) AllReduceMax(x float64) float64 {
	return c.AllReduceMaxSlice([]float64{x})[0]
}

func (c *Comm) AllReduceSumInt(x int) int {
	return int(c.AllReduceSum(float64(x)))
}
