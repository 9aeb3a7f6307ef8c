package repl

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// bundle builds the MIME representations of an echoed or displayed value.
// text/plain is always present; application/json is added for values that
// marshal to an object or array.
func bundle(v reflect.Value) map[string]any {
	data := map[string]any{protocol.MIMEPlainText: plain(v)}
	if structured, ok := jsonForm(v); ok {
		data[protocol.MIMEJSON] = structured
	}
	return data
}

func plain(v reflect.Value) string {
	if !v.IsValid() {
		return "<nil>"
	}
	if !v.CanInterface() {
		return v.String()
	}
	x := v.Interface()
	if s, ok := x.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", x)
}

func jsonForm(v reflect.Value) (any, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}
	if _, isErr := v.Interface().(error); isErr {
		return nil, false
	}

	data, err := json.Marshal(v.Interface())
	if err != nil || len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return nil, false
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}
