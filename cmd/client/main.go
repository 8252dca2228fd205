package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/chatrelay/internal/protocol"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := pflag.String("addr", "127.0.0.1:53000", "chat server address")
	user := pflag.String("user", "", "username")
	room := pflag.String("room", "", "room to join (empty joins the lobby)")
	pflag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: client --user NAME [--room ROOM] [--addr HOST:PORT]")
		os.Exit(2)
	}

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("connect")
	}
	defer conn.Close()

	if err := send(conn, &protocol.Join{Username: *user, Room: *room}); err != nil {
		log.Fatal().Err(err).Msg("handshake")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		receive(conn, os.Stdout)
	}()

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		msg, quit, err := parseLine(in.Text())
		if quit {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if msg == nil {
			continue
		}
		if err := send(conn, msg); err != nil {
			log.Error().Err(err).Msg("send")
			return
		}
	}

	// stdin closed: half-close and drain what the server still has for us.
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	<-done
}

// parseLine maps a typed line to a client message. A nil message with no
// error means there is nothing to send.
func parseLine(line string) (protocol.Message, bool, error) {
	if strings.TrimSpace(line) == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return &protocol.Chat{Text: line}, false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return nil, true, nil
	case "/join":
		if len(fields) != 2 {
			return nil, false, errors.New("usage: /join <room>")
		}
		return &protocol.ChangeRoom{Room: fields[1]}, false, nil
	case "/file":
		if len(fields) != 3 {
			return nil, false, errors.New("usage: /file <name> <size>")
		}
		size, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid size %q", fields[2])
		}
		return &protocol.FileAnnounce{Filename: fields[1], Size: size}, false, nil
	default:
		return nil, false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func send(w io.Writer, m protocol.Message) error {
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return protocol.WriteFrame(w, b)
}

func receive(r io.Reader, out io.Writer) {
	for {
		payload, err := protocol.ReadFrame(r, 0)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Msg("connection lost")
			} else {
				fmt.Fprintln(out, "disconnected")
			}
			return
		}
		var n protocol.Notice
		if err := n.UnmarshalBinary(payload); err != nil {
			log.Warn().Err(err).Msg("unreadable notice")
			continue
		}
		fmt.Fprintln(out, n.Text)
	}
}
