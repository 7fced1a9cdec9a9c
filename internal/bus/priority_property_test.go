package bus

import (
	"container/heap"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPriorityQueuePopOrderProperty checks spec §8's quantified bus
// invariant: for any sequence of published priorities, a strictly
// higher-priority message is never popped after a strictly lower-priority
// one (strict priority order across messages, FIFO within ties).
func TestPriorityQueuePopOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("pop order is non-increasing in priority, FIFO within ties", prop.ForAll(
		func(priorities []float64) bool {
			pq := &priorityQueue{}
			heap.Init(pq)
			for i, p := range priorities {
				heap.Push(pq, &item{msg: msgWithPriority("m", p), seq: uint64(i)})
			}

			var poppedPriority []float64
			var poppedSeq []uint64
			for pq.Len() > 0 {
				it := heap.Pop(pq).(*item)
				poppedPriority = append(poppedPriority, it.msg.Priority)
				poppedSeq = append(poppedSeq, it.seq)
			}

			for i := 1; i < len(poppedPriority); i++ {
				if poppedPriority[i] > poppedPriority[i-1] {
					return false
				}
				if poppedPriority[i] == poppedPriority[i-1] && poppedSeq[i] < poppedSeq[i-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0.0, 1.0)),
	))

	properties.TestingRun(t)
}
