package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCommand(t *testing.T) {
	tests := map[string]struct {
		line    string
		want    Command
		wantErr bool
	}{
		"register":            {line: "REGISTER alice 6001", want: Command{Verb: VerbRegister, Name: "alice", Port: "6001"}},
		"register crlf":       {line: "REGISTER alice 6001\r\n", want: Command{Verb: VerbRegister, Name: "alice", Port: "6001"}},
		"register port kept":  {line: "REGISTER bob notaport", want: Command{Verb: VerbRegister, Name: "bob", Port: "notaport"}},
		"register no port":    {line: "REGISTER alice", wantErr: true},
		"register utf8 name":  {line: "REGISTER josé 6001", want: Command{Verb: VerbRegister, Name: "josé", Port: "6001"}},
		"register comma name": {line: "REGISTER a,b 6001", want: Command{Verb: VerbRegister, Name: "a,b", Port: "6001"}},
		"register empty name": {line: "REGISTER  6001", wantErr: true},
		"register port space": {line: "REGISTER alice 60 01", wantErr: true},
		"list":                {line: "LIST", want: Command{Verb: VerbList}},
		"getaddr":             {line: "GETADDR bob", want: Command{Verb: VerbGetAddr, Name: "bob"}},
		"getaddr missing":     {line: "GETADDR", wantErr: true},
		"getaddr extra":       {line: "GETADDR bob carol", wantErr: true},
		"msg":                 {line: "MSG bob hello", want: Command{Verb: VerbMsg, Name: "bob", Text: "hello"}},
		"msg keeps spacing":   {line: "MSG bob  two  spaces ", want: Command{Verb: VerbMsg, Name: "bob", Text: " two  spaces "}},
		"msg no text":         {line: "MSG bob", wantErr: true},
		"quit":                {line: "QUIT", want: Command{Verb: VerbQuit}},
		"lowercase verb":      {line: "list", wantErr: true},
		"empty":               {line: "", wantErr: true},
		"garbage":             {line: "HELLO there", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseCommand(tc.line)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("ParseCommand(%q): expected ErrMalformed, got %v", tc.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q): unexpected error: %v", tc.line, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseCommand(%q) mismatch (-want +got):\n%s", tc.line, diff)
			}
		})
	}
}

func TestCommandStringParses(t *testing.T) {
	cmds := []Command{
		{Verb: VerbRegister, Name: "alice", Port: "6001"},
		{Verb: VerbList},
		{Verb: VerbGetAddr, Name: "bob"},
		{Verb: VerbMsg, Name: "bob", Text: "hi: there"},
		{Verb: VerbQuit},
	}
	for _, c := range cmds {
		got, err := ParseCommand(c.String())
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", c.String(), err)
		}
		if diff := cmp.Diff(c, got); diff != "" {
			t.Errorf("command %q mismatch (-want +got):\n%s", c.String(), diff)
		}
	}
}

func TestParseResponse(t *testing.T) {
	tests := map[string]struct {
		line string
		want Response
	}{
		"ok":          {"OK", Response{Kind: RespOK}},
		"err":         {"ERR\r", Response{Kind: RespErr}},
		"users":       {"USERS alice,bob", Response{Kind: RespUsers, Users: []string{"alice", "bob"}}},
		"users empty": {"USERS ", Response{Kind: RespUsers, Users: []string{}}},
		"addr":        {"ADDR 10.0.0.2 6002", Response{Kind: RespAddr, IP: "10.0.0.2", Port: "6002"}},
		"from":        {"FROM alice: hello: world", Response{Kind: RespFrom, From: "alice", Text: "hello: world"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseResponse(tc.line)
			if err != nil {
				t.Fatalf("ParseResponse(%q): %v", tc.line, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseResponse(%q) mismatch (-want +got):\n%s", tc.line, diff)
			}
		})
	}

	if _, err := ParseResponse("ADDR 10.0.0.2"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("short ADDR: expected ErrMalformedResponse, got %v", err)
	}
	if _, err := ParseResponse("NOPE"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("unknown: expected ErrMalformedResponse, got %v", err)
	}
}

func TestResponseFormatting(t *testing.T) {
	if got := Users(nil); got != "USERS " {
		t.Errorf("Users(nil) = %q", got)
	}
	if got := Users([]string{"a", "b"}); got != "USERS a,b" {
		t.Errorf("Users = %q", got)
	}
	if got := Addr("::1", "6002"); got != "ADDR ::1 6002" {
		t.Errorf("Addr = %q", got)
	}
	if got := From("alice", "hello"); got != "FROM alice: hello" {
		t.Errorf("From = %q", got)
	}
}

func TestScannerLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, "LIST"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	buf.WriteString(strings.Repeat("x", MaxLineLength+1) + "\n")

	sc := NewScanner(&buf)
	if !sc.Scan() || sc.Text() != "LIST" {
		t.Fatalf("first line: got %q err=%v", sc.Text(), sc.Err())
	}
	if sc.Scan() {
		t.Fatalf("oversized line should not scan")
	}
	if sc.Err() == nil {
		t.Fatalf("expected scanner error for oversized line")
	}
}
