package uds

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// startServer brings up a Server on a throwaway socket and hands back a
// connected client. configure, when non-nil, runs before the listener opens.
func startServer(t *testing.T, configure func(*Server)) (*Client, string) {
	t.Helper()
	// Sockets live under /tmp so the path stays inside the 104-byte
	// limit macOS puts on Unix socket addresses.
	dir, err := os.MkdirTemp("/tmp", "steplock-uds-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	sockPath := filepath.Join(dir, "steplock.sock")
	server := NewServer(sockPath)
	if configure != nil {
		configure(server)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	client := NewClient(sockPath)
	client.SetTimeout(5 * time.Second)
	return client, sockPath
}

func TestFraming_RoundTrip(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)

		var req Request
		if err := ReadFrame(srv, &req); err != nil {
			t.Errorf("server ReadFrame: %v", err)
			return
		}
		if req.Command != "unlock_schedule" {
			t.Errorf("command = %q, want %q", req.Command, "unlock_schedule")
		}
		if req.ProtocolVersion != ProtocolVersion {
			t.Errorf("protocol_version = %d, want %d", req.ProtocolVersion, ProtocolVersion)
		}

		var params map[string]int
		json.Unmarshal(req.Params, &params)
		if params["minute_of_day"] != 1080 {
			t.Errorf("minute_of_day = %d, want 1080", params["minute_of_day"])
		}

		resp := SuccessResponse(map[string]any{
			"identifier":    "daily_unlock",
			"minute_of_day": params["minute_of_day"],
		})
		if err := WriteFrame(srv, resp); err != nil {
			t.Errorf("server WriteFrame: %v", err)
		}
	}()

	req, _ := NewRequest("unlock_schedule", map[string]int{"minute_of_day": 1080})
	if err := WriteFrame(cli, req); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}

	var resp Response
	if err := ReadFrame(cli, &resp); err != nil {
		t.Fatalf("client ReadFrame: %v", err)
	}
	if !resp.Success {
		t.Error("expected success response")
	}

	<-done
}

func TestFraming_LargeSelection(t *testing.T) {
	// A selection with tens of thousands of blocked domains (~1MB frame).
	domains := make([]string, 30000)
	for i := range domains {
		domains[i] = fmt.Sprintf("distraction-%05d.example.com", i)
	}

	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)

		var req Request
		if err := ReadFrame(srv, &req); err != nil {
			t.Errorf("server ReadFrame: %v", err)
			return
		}

		var params map[string][]string
		json.Unmarshal(req.Params, &params)
		if len(params["domains"]) != len(domains) {
			t.Errorf("domains = %d, want %d", len(params["domains"]), len(domains))
		}
		WriteFrame(srv, SuccessResponse(map[string]int{"count": len(params["domains"])}))
	}()

	req, _ := NewRequest("selection_set", map[string][]string{"domains": domains})
	if err := WriteFrame(cli, req); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}

	var resp Response
	if err := ReadFrame(cli, &resp); err != nil {
		t.Fatalf("client ReadFrame: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}

	var data map[string]int
	json.Unmarshal(resp.Data, &data)
	if data["count"] != len(domains) {
		t.Errorf("count = %d, want %d", data["count"], len(domains))
	}

	<-done
}

func TestFraming_RejectsOversizeFrame(t *testing.T) {
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], maxFrameBytes+1)

	var req Request
	err := ReadFrame(bytes.NewReader(head[:]), &req)
	if err == nil || !strings.Contains(err.Error(), "frame too large") {
		t.Errorf("expected frame-too-large error, got %v", err)
	}
}

func TestServer_ProtocolVersionMismatch(t *testing.T) {
	client, _ := startServer(t, func(s *Server) {
		s.Handle("ping", func(req *Request) *Response {
			return SuccessResponse(map[string]string{"status": "ok"})
		})
	})

	// A registered command still gets rejected when the version is off.
	resp, err := client.Send(&Request{ProtocolVersion: 999, Command: "ping"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success {
		t.Error("expected failure for version mismatch")
	}
	if resp.Error == nil {
		t.Fatal("expected error detail")
	}
	if resp.Error.Code != ErrCodeProtocolMismatch {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeProtocolMismatch)
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	client, _ := startServer(t, nil)

	resp, err := client.SendCommand("goal_delete", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success {
		t.Error("expected failure for unknown command")
	}
	if resp.Error.Code != ErrCodeUnknownCommand {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeUnknownCommand)
	}
}

func TestServer_HandlerExecution(t *testing.T) {
	client, _ := startServer(t, func(s *Server) {
		s.Handle("ping", func(req *Request) *Response {
			return SuccessResponse(map[string]string{"status": "ok"})
		})
		s.Handle("status", func(req *Request) *Response {
			return SuccessResponse(map[string]any{
				"block":   true,
				"reasons": []string{"steps 4200/10000"},
			})
		})
	})

	resp, err := client.SendCommand("ping", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !resp.Success {
		t.Error("ping: expected success")
	}
	var pingData map[string]string
	json.Unmarshal(resp.Data, &pingData)
	if pingData["status"] != "ok" {
		t.Errorf("ping status = %q", pingData["status"])
	}

	resp, err = client.SendCommand("status", nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Success {
		t.Error("status: expected success")
	}
	var statusData struct {
		Block   bool     `json:"block"`
		Reasons []string `json:"reasons"`
	}
	json.Unmarshal(resp.Data, &statusData)
	if !statusData.Block {
		t.Error("status: expected block=true")
	}
	if len(statusData.Reasons) != 1 || statusData.Reasons[0] != "steps 4200/10000" {
		t.Errorf("status reasons = %v", statusData.Reasons)
	}
}

func TestServer_HandlerErrorPassthrough(t *testing.T) {
	client, _ := startServer(t, func(s *Server) {
		s.Handle("goal_propose", func(req *Request) *Response {
			return ErrorResponse(ErrCodeValidation, "steps target must be >= 0, got -1")
		})
	})

	resp, err := client.SendCommand("goal_propose", map[string]any{"steps": -1})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success {
		t.Error("expected failure")
	}
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeValidation)
	}
	if !strings.Contains(resp.Error.Message, "steps target") {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestServer_MultipleClients(t *testing.T) {
	_, sockPath := startServer(t, func(s *Server) {
		s.Handle("status", func(req *Request) *Response {
			return SuccessResponse(map[string]any{"block": false})
		})
	})

	// Several CLI invocations may query the daemon at once.
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			c := NewClient(sockPath)
			c.SetTimeout(5 * time.Second)
			resp, err := c.SendCommand("status", nil)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("status returned failure: %+v", resp.Error)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Errorf("concurrent status: %v", err)
	}
}

func TestClient_DaemonNotRunning(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	client.SetTimeout(1 * time.Second)

	_, err := client.SendCommand("ping", nil)
	if err == nil {
		t.Fatal("expected error when daemon not running")
	}
	if !strings.Contains(err.Error(), "failed to connect to daemon") {
		t.Errorf("expected connection error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "steplock daemon") {
		t.Errorf("expected start hint, got: %v", err)
	}
}

func TestServer_ConnectionTimeout(t *testing.T) {
	client, sockPath := startServer(t, func(s *Server) {
		s.SetConnTimeout(500 * time.Millisecond)
		s.Handle("ping", func(req *Request) *Response {
			return SuccessResponse(nil)
		})
	})

	// Dial and go silent; the server must drop the connection.
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(800 * time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("read on a timed-out connection should fail")
	}

	// The listener stays healthy for the next request.
	resp, err := client.SendCommand("ping", nil)
	if err != nil {
		t.Fatalf("ping after timeout: %v", err)
	}
	if !resp.Success {
		t.Error("expected success after timeout recovery")
	}
}

func TestServer_SocketPermissions(t *testing.T) {
	_, sockPath := startServer(t, nil)

	info, err := os.Stat(sockPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	// Only the owning user may drive the daemon.
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %04o, want 0600", perm)
	}
}

func TestServer_StopCleansUpSocket(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "steplock-uds-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	sockPath := filepath.Join(dir, "steplock.sock")
	server := NewServer(sockPath)
	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if _, err := os.Stat(sockPath); err != nil {
		t.Fatalf("socket missing while running: %v", err)
	}

	server.Stop()

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Error("socket file should be gone after Stop")
	}
}

func TestResponseConstructors(t *testing.T) {
	fail := ErrorResponse(ErrCodeValidation, "unlock minute out of range")
	if fail.Success || fail.Error == nil {
		t.Fatalf("ErrorResponse = %+v", fail)
	}
	if fail.Error.Code != ErrCodeValidation || fail.Error.Message != "unlock minute out of range" {
		t.Errorf("error detail = %+v", fail.Error)
	}

	ok := SuccessResponse(map[string]int{"minute_of_day": 1080})
	if !ok.Success || ok.Error != nil {
		t.Fatalf("SuccessResponse = %+v", ok)
	}
	var data map[string]int
	json.Unmarshal(ok.Data, &data)
	if data["minute_of_day"] != 1080 {
		t.Errorf("minute_of_day = %d, want 1080", data["minute_of_day"])
	}

	if empty := SuccessResponse(nil); empty.Data != nil {
		t.Errorf("nil payload produced data %s", empty.Data)
	}
}
