package optim

// WarmupLinear scales the base learning rate of an optimizer linearly from 0
// to 1 over warmupSteps, then linearly back to 0 at totalSteps:
//
//	m(step) = step / warmup                               if step < warmup
//	m(step) = max(0, (total - step) / (total - warmup))   otherwise
//
// The base rate is the optimizer's rate when the schedule is created.
// Construction applies m(0), so the learning rate starts at zero.
type WarmupLinear struct {
	opt         Optimizer
	baseLR      float32
	warmupSteps int
	totalSteps  int
	lastStep    int
}

// NewWarmupLinear attaches a warmup-linear schedule to opt.
func NewWarmupLinear(opt Optimizer, warmupSteps, totalSteps int) *WarmupLinear {
	s := &WarmupLinear{
		opt:         opt,
		baseLR:      opt.GetLR(),
		warmupSteps: warmupSteps,
		totalSteps:  totalSteps,
	}
	s.apply()
	return s
}

// Step advances the schedule by one step and updates the learning rate.
func (s *WarmupLinear) Step() {
	s.lastStep++
	s.apply()
}

// LastStep returns the number of Step calls so far.
func (s *WarmupLinear) LastStep() int {
	return s.lastStep
}

// Multiplier returns the factor applied to the base rate at step.
func (s *WarmupLinear) Multiplier(step int) float32 {
	if step < s.warmupSteps {
		return float32(step) / float32(max(1, s.warmupSteps))
	}
	remaining := float32(s.totalSteps-step) / float32(max(1, s.totalSteps-s.warmupSteps))
	return max(0, remaining)
}

func (s *WarmupLinear) apply() {
	s.opt.SetLR(s.baseLR * s.Multiplier(s.lastStep))
}
