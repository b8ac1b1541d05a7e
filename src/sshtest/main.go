// Portions adapted from the Tast sshtest and fakesshserver packages.
// Copyright 2017 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file of the chromiumos/platform/tast repository.

// Package sshtest runs an in-process SSH server that answers "exec"
// requests, for testing runners against a real protocol exchange.
package sshtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Process simulates a command started by the server and returns its exit
// status.
type Process func(stdin io.Reader, stdout, stderr io.Writer) int

// Handler decides whether to accept cmd. Returning false rejects the
// exec request.
type Handler func(cmd string, pty bool) (Process, bool)

// Output returns a Process that prints out and exits with status.
func Output(out string, status int) Process {
	return func(_ io.Reader, stdout, _ io.Writer) int {
		io.WriteString(stdout, out)
		return status
	}
}

type Server struct {
	cfg      *ssh.ServerConfig
	listener net.Listener
	handler  Handler

	mu       sync.Mutex
	commands []string
}

// GenerateKeys returns a user and a host key of the given size.
func GenerateKeys(bits int) (userKey, hostKey *rsa.PrivateKey, err error) {
	if userKey, err = rsa.GenerateKey(rand.Reader, bits); err != nil {
		return nil, nil, fmt.Errorf("generating user key: %w", err)
	}
	if hostKey, err = rsa.GenerateKey(rand.Reader, bits); err != nil {
		return nil, nil, fmt.Errorf("generating host key: %w", err)
	}
	return userKey, hostKey, nil
}

// Start listens on a random localhost port and accepts clients
// authenticating with userKey.
func Start(userKey *rsa.PublicKey, hostKey *rsa.PrivateKey, handler Handler) (*Server, error) {
	pub, err := ssh.NewPublicKey(userKey)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if subtle.ConstantTimeCompare(key.Marshal(), pub.Marshal()) == 1 {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}

	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		return nil, err
	}
	cfg.AddHostKey(signer)

	ls, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, listener: ls, handler: handler}

	go func() {
		for {
			conn, err := ls.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn)
		}
	}()

	return s, nil
}

func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Commands returns every exec request received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.commands...)
}

// ClientConfig returns a client config that authenticates with userKey
// and trusts the server's host key blindly.
func ClientConfig(user string, userKey *rsa.PrivateKey) (*ssh.ClientConfig, error) {
	signer, err := ssh.NewSignerFromKey(userKey)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

func (s *Server) handleConn(conn net.Conn) {
	sConn, chans, reqs, err := ssh.NewServerConn(conn, s.cfg)
	if err != nil {
		slog.Debug("Handshake failed", "err", err)
		return
	}
	defer sConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, fmt.Sprintf("%q unsupported", newChan.ChannelType()))
			continue
		}

		ch, chReqs, err := newChan.Accept()
		if err != nil {
			slog.Debug("Failed to accept channel", "err", err)
			return
		}
		go s.handleChannel(ch, chReqs)
	}
}

func (s *Server) handleChannel(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	pty := false
	for req := range reqs {
		switch req.Type {
		case "pty-req":
			pty = true
			req.Reply(true, nil)

		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			proc, ok := s.handler(payload.Command, pty)
			if !ok {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			status := proc(ch, ch, ch.Stderr())
			ch.CloseWrite()
			ch.SendRequest("exit-status", false, exitStatusPayload(status))
			return

		case "signal":
			return

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func exitStatusPayload(status int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(status))
	return b
}
