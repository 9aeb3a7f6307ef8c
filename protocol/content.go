package protocol

// Reply status values shared by shell replies.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusAbort = "abort"
)

// Execution states announced on IOPub.
const (
	StateBusy = "busy"
	StateIdle = "idle"
)

// Stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// History access types.
const (
	HistoryRange  = "range"
	HistoryTail   = "tail"
	HistorySearch = "search"
)

// MIMEPlainText is the representation every echoed value carries.
const MIMEPlainText = "text/plain"

// MIMEJSON is an optional structured representation.
const MIMEJSON = "application/json"

type ExecuteRequestContent struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	UserVariables   []string          `json:"user_variables,omitempty"`
	UserExpressions map[string]string `json:"user_expressions,omitempty"`
}

// ExecuteReplyContent is always sent for an execute_request. Status selects
// which of the optional fields are meaningful.
type ExecuteReplyContent struct {
	Status         string `json:"status"`
	ExecutionCount int    `json:"execution_count"`

	// ok
	Payload         map[string]any    `json:"payload,omitempty"`
	UserVariables   map[string]string `json:"user_variables,omitempty"`
	UserExpressions map[string]string `json:"user_expressions,omitempty"`
	TransformedCode *string           `json:"transformed_code,omitempty"`

	// error
	EName     string   `json:"ename,omitempty"`
	EValue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}

type ObjectInfoRequestContent struct {
	OName string `json:"oname"`
}

type ObjectInfoReplyContent struct {
	Name       string `json:"name"`
	Found      bool   `json:"found"`
	TypeName   string `json:"type_name,omitempty"`
	Kind       string `json:"kind,omitempty"`
	StringForm string `json:"string_form,omitempty"`
}

type CompleteRequestContent struct {
	Text      string `json:"text"`
	Line      string `json:"line"`
	Block     string `json:"block,omitempty"`
	CursorPos int    `json:"cursor_pos"`
}

type CompleteReplyContent struct {
	Status      string   `json:"status"`
	Matches     []string `json:"matches"`
	MatchedText string   `json:"matched_text"`
}

type HistoryRequestContent struct {
	Output         bool   `json:"output"`
	Raw            bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	Session        int    `json:"session,omitempty"`
	Start          int    `json:"start,omitempty"`
	Stop           int    `json:"stop,omitempty"`
	N              int    `json:"n,omitempty"`
	Pattern        string `json:"pattern,omitempty"`
}

// HistoryItem is one returned history entry. Output is omitted, never null,
// when it was not requested or not recorded.
type HistoryItem struct {
	Session int     `json:"session"`
	Line    int     `json:"line"`
	Input   string  `json:"input"`
	Output  *string `json:"output,omitempty"`
}

type HistoryReplyContent struct {
	Status  string        `json:"status"`
	History []HistoryItem `json:"history"`
}

type ConnectRequestContent struct{}

type ConnectReplyContent struct {
	ShellPort int `json:"shell_port"`
	IOPubPort int `json:"iopub_port"`
	StdinPort int `json:"stdin_port"`
	HBPort    int `json:"hb_port"`
}

type ShutdownRequestContent struct {
	Restart bool `json:"restart"`
}

type ShutdownReplyContent struct {
	Restart bool `json:"restart"`
}

type GetAttrRequestContent struct {
	Name string `json:"name"`
}

// GetAttrReplyContent reports "ok" or a stable error kind in Status
// ("AttributeError", "AccessError").
type GetAttrReplyContent struct {
	Status  string `json:"status"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

type SetAttrRequestContent struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type SetAttrReplyContent struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorReplyContent is the reply sent when a shell handler fails outside of
// its own status reporting.
type ErrorReplyContent struct {
	Status string `json:"status"`
	EName  string `json:"ename"`
	EValue string `json:"evalue"`
}

type StreamContent struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type DisplayDataContent struct {
	Source   string         `json:"source"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type PyInContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// PyOutContent carries an echoed value. Data always has a text/plain entry;
// consumers ignore representation types they do not understand.
type PyOutContent struct {
	ExecutionCount int            `json:"execution_count"`
	Data           map[string]any `json:"data"`
}

type PyErrContent struct {
	ExecutionCount int      `json:"execution_count"`
	EName          string   `json:"ename"`
	EValue         string   `json:"evalue"`
	Traceback      []string `json:"traceback"`
}

type StatusContent struct {
	ExecutionState string `json:"execution_state"`
}

type CrashContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type InputRequestContent struct {
	Prompt string `json:"prompt"`
}

type InputReplyContent struct {
	Value string `json:"value"`
}
