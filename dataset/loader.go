package dataset

import (
	"context"
	"math/rand/v2"

	"github.com/hammal/koopman/loss"
	"gonum.org/v1/gonum/mat"
)

// prefetch is the number of collated batches buffered ahead of training.
const prefetch = 2

// Batch is a collated set of samples. Y is horizon major.
type Batch struct {
	X       *mat.Dense
	Y       loss.Sequence
	Lengths []int
}

// Size returns the number of samples.
func (b Batch) Size() int {
	return len(b.Lengths)
}

// MaxLength returns the largest valid horizon of the batch.
func (b Batch) MaxLength() int {
	var res int
	for _, l := range b.Lengths {
		if l > res {
			res = l
		}
	}
	return res
}

// Loader collates samples into batches, normalizing them when the dataset
// does. A nil rnd keeps the sample order.
type Loader struct {
	samples   []Sample
	batchSize int
	rnd       *rand.Rand
	stats     *Stats
}

// Len returns the number of batches per pass.
func (l *Loader) Len() int {
	return (len(l.samples) + l.batchSize - 1) / l.batchSize
}

// Batches starts a pass over the samples. Batches are collated on a separate
// goroutine and the channel is closed after the last one or once ctx is done.
func (l *Loader) Batches(ctx context.Context) <-chan Batch {
	order := make([]int, len(l.samples))
	for index := range order {
		order[index] = index
	}
	if l.rnd != nil {
		l.rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	out := make(chan Batch, prefetch)
	go func() {
		defer close(out)
		for start := 0; start < len(order); start += l.batchSize {
			end := start + l.batchSize
			if end > len(order) {
				end = len(order)
			}
			select {
			case out <- l.collate(order[start:end]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// All collates every sample into a single batch.
func (l *Loader) All() Batch {
	order := make([]int, len(l.samples))
	for index := range order {
		order[index] = index
	}
	return l.collate(order)
}

func (l *Loader) collate(indices []int) Batch {
	first := l.samples[indices[0]]
	horizon, dim := first.Y.Dims()
	b := Batch{
		X:       mat.NewDense(len(indices), dim, nil),
		Y:       make(loss.Sequence, horizon),
		Lengths: make([]int, len(indices)),
	}
	for step := range b.Y {
		b.Y[step] = mat.NewDense(len(indices), dim, nil)
	}
	for row, index := range indices {
		s := l.samples[index]
		b.X.SetRow(row, s.X)
		for step := range b.Y {
			b.Y[step].SetRow(row, s.Y.RawRowView(step))
		}
		b.Lengths[row] = s.Length
	}
	if l.stats != nil {
		b.X = l.stats.Transform(b.X)
		for step := range b.Y {
			b.Y[step] = l.stats.Transform(b.Y[step])
		}
	}
	return b
}
