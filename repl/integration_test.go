package repl_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

type recorder struct {
	mu       sync.Mutex
	messages map[protocol.MsgType][]any
}

func (r *recorder) Publish(_ context.Context, _ protocol.Header, msgType protocol.MsgType, content any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = make(map[protocol.MsgType][]any)
	}
	r.messages[msgType] = append(r.messages[msgType], content)
}

func (r *recorder) outputs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.messages[protocol.PyOut] {
		out = append(out, c.(protocol.PyOutContent).Data[protocol.MIMEPlainText].(string))
	}
	return out
}

func newEngine(t *testing.T) (*engine.Engine, *recorder) {
	t.Helper()

	store := history.NewMemoryStore()
	_, err := store.Begin(context.Background())
	require.NoError(t, err)

	rec := &recorder{}
	cfg := engine.DefaultConfig()
	eng, err := engine.New(newRuntime(t), store, &cfg, engine.WithPublisher(rec))
	require.NoError(t, err)
	return eng, rec
}

func execute(eng *engine.Engine, code string) protocol.ExecuteReplyContent {
	return eng.Execute(context.Background(), protocol.NewHeader("s", "u"), protocol.ExecuteRequestContent{Code: code})
}

func TestEngine_EchoScenario(t *testing.T) {
	eng, rec := newEngine(t)

	reply := execute(eng, "x := 1\nx+1")

	require.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 1, reply.ExecutionCount)
	assert.Equal(t, []string{"2"}, rec.outputs())

	out := rec.messages[protocol.PyOut][0].(protocol.PyOutContent)
	assert.Equal(t, 1, out.ExecutionCount)
}

func TestEngine_LoopEchoesEveryEvaluation(t *testing.T) {
	eng, rec := newEngine(t)

	reply := execute(eng, "for i := 0; i < 3; i++ { i * 10 }")

	require.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, []string{"0", "10", "20"}, rec.outputs())
	for _, c := range rec.messages[protocol.PyOut] {
		assert.Equal(t, reply.ExecutionCount, c.(protocol.PyOutContent).ExecutionCount)
	}
}

func TestEngine_LoopInNoEchoUnit(t *testing.T) {
	eng, rec := newEngine(t)

	reply := execute(eng, "total := 0\nfor i := 0; i < 3; i++ {\n\ttotal += i\n\ttotal\n}\ntotal = total * 2\nfunc unused() {\n\t_ = 1\n}")

	require.Equal(t, protocol.StatusOK, reply.Status, reply.EValue)
	assert.Empty(t, rec.outputs())
}

func TestEngine_LongTrailingBlockNotEchoed(t *testing.T) {
	eng, rec := newEngine(t)

	reply := execute(eng, "y := 2\nfunc h() int {\n\tz := y\n\tz++\n\treturn z\n}")
	require.Equal(t, protocol.StatusOK, reply.Status)
	assert.Empty(t, rec.outputs())
}

func TestEngine_AutocallAndDirectives(t *testing.T) {
	eng, rec := newEngine(t)

	require.Equal(t, protocol.StatusOK, execute(eng, "func square(n int) int { return n * n }").Status)

	reply := execute(eng, "square 4")
	require.Equal(t, protocol.StatusOK, reply.Status, "%s: %s", reply.EName, reply.EValue)
	require.NotNil(t, reply.TransformedCode)
	assert.Equal(t, "square(4)", *reply.TransformedCode)
	assert.Equal(t, []string{"16"}, rec.outputs())

	reply = execute(eng, "%set_next_input square 5")
	require.Equal(t, protocol.StatusOK, reply.Status, "%s: %s", reply.EName, reply.EValue)
	assert.Equal(t, "square 5", reply.Payload["set_next_input"])
	assert.Empty(t, *reply.TransformedCode)

	reply = execute(eng, "%page square(3)")
	require.Equal(t, protocol.StatusOK, reply.Status, "%s: %s", reply.EName, reply.EValue)
	assert.Equal(t, "9", reply.Payload["page"])
}

func TestEngine_UserExpressions(t *testing.T) {
	eng, _ := newEngine(t)

	reply := eng.Execute(context.Background(), protocol.NewHeader("s", "u"), protocol.ExecuteRequestContent{
		Code:            "n := 20",
		UserVariables:   []string{"n"},
		UserExpressions: map[string]string{"half": "n / 2", "bad": "nothing * 2"},
	})

	require.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, "20", reply.UserVariables["n"])
	assert.Equal(t, "10", reply.UserExpressions["half"])
	assert.Contains(t, reply.UserExpressions["bad"], "[ERROR] NameError: ")
}
