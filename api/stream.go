package api

import "time"

// MsgType is a message type for streaming responses
type MsgType string

// Streaming message type constants
const (
	StartJobMsg      MsgType = "job_start"
	StartCompileMsg  MsgType = "compile_start"
	FinishCompileMsg MsgType = "compile_finish"
	ReachTestMsg     MsgType = "test_reach"
	IgnoreTestMsg    MsgType = "test_ignore"
	FinishTestMsg    MsgType = "test_finish"
	FinishJobMsg     MsgType = "job_finish"
)

// Runtime data size constraints for streaming
const (
	MaxRuntimeDataHeight = 40
	MaxRuntimeDataWidth  = 80
)

// Header is the common header for all streaming response messages
type Header struct {
	EvalUuid string  `json:"eval_uuid"`
	MsgType  MsgType `json:"msg_type"`
}

type StartJob struct {
	Header
	SystemInfo  string `json:"system_info"`
	StartedTime string `json:"started_time"`
}

type StartCompile struct {
	Header
}

type FinishCompile struct {
	Header
	RuntimeData *RuntimeData `json:"runtime_data"`
}

type ReachTest struct {
	Header
	TestId int     `json:"test_id"`
	Input  *string `json:"input"`
	Answer *string `json:"answer"`
}

type IgnoreTest struct {
	Header
	TestId int `json:"test_id"`
}

type FinishTest struct {
	Header
	TestId  int          `json:"test_id"`
	Verdict Status       `json:"verdict"`
	Message *string      `json:"message"`
	Run     *RuntimeData `json:"run"`
}

// FinishJob is the last message of every stream.
type FinishJob struct {
	Header
	Status        Status  `json:"status"`
	Passed        int     `json:"passed"`
	Total         int     `json:"total"`
	ErrorMessage  *string `json:"error_message"`
	CompileError  bool    `json:"compile_error"`
	InternalError bool    `json:"internal_error"`
}

func NewHeader(evalUuid string, msgType MsgType) Header {
	return Header{
		EvalUuid: evalUuid,
		MsgType:  msgType,
	}
}

func NewStartJob(evalUuid, systemInfo string) StartJob {
	return StartJob{
		Header:      NewHeader(evalUuid, StartJobMsg),
		SystemInfo:  systemInfo,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartCompile(evalUuid string) StartCompile {
	return StartCompile{Header: NewHeader(evalUuid, StartCompileMsg)}
}

func NewFinishCompile(evalUuid string, runtimeData *RuntimeData) FinishCompile {
	return FinishCompile{
		Header:      NewHeader(evalUuid, FinishCompileMsg),
		RuntimeData: runtimeData,
	}
}

func NewReachTest(evalUuid string, testId int, input, answer *string) ReachTest {
	return ReachTest{
		Header: NewHeader(evalUuid, ReachTestMsg),
		TestId: testId,
		Input:  input,
		Answer: answer,
	}
}

func NewIgnoreTest(evalUuid string, testId int) IgnoreTest {
	return IgnoreTest{
		Header: NewHeader(evalUuid, IgnoreTestMsg),
		TestId: testId,
	}
}

func NewFinishTest(evalUuid string, testId int, verdict Status, message *string, run *RuntimeData) FinishTest {
	return FinishTest{
		Header:  NewHeader(evalUuid, FinishTestMsg),
		TestId:  testId,
		Verdict: verdict,
		Message: message,
		Run:     run,
	}
}

func NewFinishJob(evalUuid string, status Status, passed, total int, errorMessage *string) FinishJob {
	return FinishJob{
		Header:        NewHeader(evalUuid, FinishJobMsg),
		Status:        status,
		Passed:        passed,
		Total:         total,
		ErrorMessage:  errorMessage,
		CompileError:  status == StatusCompileError,
		InternalError: status == StatusError,
	}
}
