package cdp

import (
	"context"
	"strings"
	"testing"

	"github.com/architech/spanav/pkg/history"
)

func TestBuildScript(t *testing.T) {
	got, err := buildScript("return a0 + a1;", "main", "</script><b>")
	if err != nil {
		t.Fatalf("buildScript() error = %v", err)
	}
	want := "(function (a0, a1) {\nreturn a0 + a1;\n})(\"main\", \"\\u003c/script\\u003e\\u003cb\\u003e\")"
	if got != want {
		t.Errorf("buildScript() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildScriptNoArgs(t *testing.T) {
	got, err := buildScript(jsScrollY)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "(function () {") || !strings.HasSuffix(got, "})()") {
		t.Errorf("buildScript() = %q", got)
	}
}

func TestBuildScriptState(t *testing.T) {
	got, err := buildScript(jsPush, "main", "/a", history.State{Caller: map[string]int{"n": 1}, ScrollY: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `{"caller":{"n":1},"scrollY":3}`) {
		t.Errorf("state not encoded: %s", got)
	}
}

func TestBuildScriptUnencodable(t *testing.T) {
	if _, err := buildScript(jsSetTitle, make(chan int)); err == nil {
		t.Error("buildScript() accepted a channel")
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), Options{}); err == nil {
		t.Error("Connect() without a URL succeeded")
	}
}
