package internal

// ResultGatherer receives evaluation progress events in order.
type ResultGatherer interface {
	StartJob(systemInfo string)

	StartCompile()
	FinishCompile(data *RunData)

	ReachTest(testIdx int, input []byte, answer []byte)
	IgnoreTest(testIdx int)
	FinishTest(testIdx int, outcome *Outcome)

	CompileError(msg string)
	InternalError(msg string)
	FinishNoError(result *Result)
}

// NopGatherer discards all events.
type NopGatherer struct{}

func (NopGatherer) StartJob(string) {}
func (NopGatherer) StartCompile() {}
func (NopGatherer) FinishCompile(*RunData) {}
func (NopGatherer) ReachTest(int, []byte, []byte) {}
func (NopGatherer) IgnoreTest(int) {}
func (NopGatherer) FinishTest(int, *Outcome) {}
func (NopGatherer) CompileError(string) {}
func (NopGatherer) InternalError(string) {}
func (NopGatherer) FinishNoError(*Result) {}
