package debounce

// Capacity is the number of most recent samples averaged by a Filter.
const Capacity = 5

type Float interface {
	~float32 | ~float64
}

// A Filter is a fixed-size circular buffer of the last Capacity samples.
// Slots are zero until written, so Average is biased toward zero until the filter is primed.
// A Filter is not safe for concurrent use.
type Filter[T Float] struct {
	samples [Capacity]T
	cursor  int
	seen    int
}

func New[T Float]() *Filter[T] {
	return &Filter[T]{}
}

// Push overwrites the oldest slot with raw.
func (f *Filter[T]) Push(raw T) {
	f.samples[f.cursor] = raw
	f.cursor = (f.cursor + 1) % Capacity

	if f.seen < Capacity {
		f.seen++
	}
}

// Average returns the mean of all Capacity slots, including zero-filled ones.
func (f *Filter[T]) Average() T {
	var sum T
	for _, v := range f.samples {
		sum += v
	}

	return sum / Capacity
}

// Len returns the number of real samples held, up to Capacity.
func (f *Filter[T]) Len() int {
	return f.seen
}

func (f *Filter[T]) Primed() bool {
	return f.seen == Capacity
}

func (f *Filter[T]) Reset() {
	*f = Filter[T]{}
}
