// Package protocol defines the line-oriented relay protocol spoken between
// clients and the rendezvous server.
//
// Every command and every response is one UTF-8 line terminated by '\n'.
// A trailing '\r' is tolerated on input.
//
//	client -> server: REGISTER <name> <port> | LIST | GETADDR <name> | MSG <name> <text> | QUIT
//	server -> client: OK | USERS <a,b,c> | ADDR <ip> <port> | ERR | FROM <sender>: <text>
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineLength is the maximum accepted line size (64KB). Longer lines fail
// the scanner and end the connection.
const MaxLineLength = 65536

// Verb is a client command keyword.
type Verb string

const (
	VerbRegister Verb = "REGISTER"
	VerbList     Verb = "LIST"
	VerbGetAddr  Verb = "GETADDR"
	VerbMsg      Verb = "MSG"
	VerbQuit     Verb = "QUIT"
)

// Response keywords.
const (
	RespOK    = "OK"
	RespUsers = "USERS"
	RespAddr  = "ADDR"
	RespErr   = "ERR"
	RespFrom  = "FROM"
)

var (
	ErrMalformed         = errors.New("protocol: malformed command")
	ErrMalformedResponse = errors.New("protocol: malformed response")
)

// Command is a parsed client command. Only the fields relevant to Verb are set.
type Command struct {
	Verb Verb
	Name string // REGISTER username, GETADDR/MSG target
	Port string // REGISTER peer-listening port, kept verbatim
	Text string // MSG body
}

// String renders the command in wire form without the line terminator.
func (c Command) String() string {
	switch c.Verb {
	case VerbRegister:
		return string(VerbRegister) + " " + c.Name + " " + c.Port
	case VerbGetAddr:
		return string(VerbGetAddr) + " " + c.Name
	case VerbMsg:
		return string(VerbMsg) + " " + c.Name + " " + c.Text
	default:
		return string(c.Verb)
	}
}

// ParseCommand parses one command line. Anything that does not match a known
// command shape returns ErrMalformed.
func ParseCommand(line string) (Command, error) {
	line = trimEOL(line)
	verb, rest, _ := strings.Cut(line, " ")

	switch Verb(verb) {
	case VerbRegister:
		name, port, ok := strings.Cut(rest, " ")
		port = strings.TrimSpace(port)
		if !ok || name == "" || port == "" || strings.ContainsAny(port, " \t") {
			return Command{}, fmt.Errorf("%w: REGISTER needs <name> <port>", ErrMalformed)
		}
		return Command{Verb: VerbRegister, Name: name, Port: port}, nil

	case VerbList:
		return Command{Verb: VerbList}, nil

	case VerbGetAddr:
		fields := strings.Fields(rest)
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%w: GETADDR needs <name>", ErrMalformed)
		}
		return Command{Verb: VerbGetAddr, Name: fields[0]}, nil

	case VerbMsg:
		name, text, ok := strings.Cut(rest, " ")
		if !ok || name == "" {
			return Command{}, fmt.Errorf("%w: MSG needs <name> <text>", ErrMalformed)
		}
		return Command{Verb: VerbMsg, Name: name, Text: text}, nil

	case VerbQuit:
		return Command{Verb: VerbQuit}, nil

	default:
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrMalformed, verb)
	}
}

// Response is a parsed server line.
type Response struct {
	Kind  string   // one of the Resp* keywords
	Users []string // USERS
	IP    string   // ADDR
	Port  string   // ADDR
	From  string   // FROM sender
	Text  string   // FROM body
}

// ParseResponse parses one server line.
func ParseResponse(line string) (Response, error) {
	line = trimEOL(line)
	kind, rest, _ := strings.Cut(line, " ")

	switch kind {
	case RespOK, RespErr:
		return Response{Kind: kind}, nil
	case RespUsers:
		r := Response{Kind: RespUsers, Users: []string{}}
		if rest != "" {
			r.Users = strings.Split(rest, ",")
		}
		return r, nil
	case RespAddr:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
		}
		return Response{Kind: RespAddr, IP: fields[0], Port: fields[1]}, nil
	case RespFrom:
		sender, text, ok := strings.Cut(rest, ": ")
		if !ok {
			return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
		}
		return Response{Kind: RespFrom, From: sender, Text: text}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
}

// OK is the acknowledgement of a REGISTER.
func OK() string { return RespOK }

// Err is the lookup-miss (and rejection) response.
func Err() string { return RespErr }

// Users renders a LIST response. An empty directory yields "USERS ".
func Users(names []string) string {
	return RespUsers + " " + strings.Join(names, ",")
}

// Addr renders a GETADDR hit.
func Addr(ip, port string) string {
	return RespAddr + " " + ip + " " + port
}

// From renders a relayed message as pushed to its recipient.
func From(sender, text string) string {
	return RespFrom + " " + sender + ": " + text
}

// PeerLine renders a line of direct peer chat.
func PeerLine(sender, text string) string {
	return sender + ": " + text
}

// NewScanner returns a line scanner that accepts lines up to MaxLineLength.
func NewScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineLength)
	return sc
}

// WriteLine writes s followed by '\n' in a single Write call.
func WriteLine(w io.Writer, s string) error {
	buf := make([]byte, 0, len(s)+1)
	buf = append(buf, s...)
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write line: %w", err)
	}
	return nil
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
