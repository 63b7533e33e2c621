package service

// WithMutation replaces the body of the run's non-failing workers.
func WithMutation(m Mutation) RunOption {
	return func(o *runOptions) {
		o.mutate = m
	}
}
