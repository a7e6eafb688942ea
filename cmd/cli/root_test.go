//go:build unit || !integration

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/syncbench/tdk/cmd/cli/info"
	"github.com/syncbench/tdk/pkg/protocol"
)

type exchange struct {
	path string
	body map[string]any
}

type RootSuite struct {
	suite.Suite
	server *httptest.Server

	mu        sync.Mutex
	exchanges []exchange
}

func TestRootSuite(t *testing.T) {
	suite.Run(t, new(RootSuite))
}

func (s *RootSuite) SetupTest() {
	s.exchanges = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		s.mu.Lock()
		s.exchanges = append(s.exchanges, exchange{path: r.URL.Path, body: body})
		s.mu.Unlock()

		w.Header().Set(protocol.HeaderServerID, "ts-1")
		w.Header().Set(protocol.HeaderAPIVersion, "2")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"version": "3.2.0-143", "apiVersion": 2,
				"cbl": "couchbase-lite-c", "device": {"systemName": "linux"}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	s.T().Cleanup(s.server.Close)
}

func (s *RootSuite) writeConfig() string {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	content := fmt.Sprintf("test_servers:\n  - url: %s\n    dataset_version: \"4.0\"\n", s.server.URL)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *RootSuite) run(args ...string) (string, error) {
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (s *RootSuite) TestVersionNeedsNoConfig() {
	out, err := s.run("version", "--output", "json")
	s.Require().NoError(err)

	var rows []map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &rows))
	s.Require().Len(rows, 1)
	s.Equal(float64(protocol.MaxSupportedVersion), rows[0]["ProtocolVersion"])
	s.NotEmpty(rows[0]["GitVersion"])
}

func (s *RootSuite) TestInfo() {
	out, err := s.run("--config", s.writeConfig(), "info", "--output", "json")
	s.Require().NoError(err)

	var rows []info.Row
	s.Require().NoError(json.Unmarshal([]byte(out), &rows))
	s.Equal([]info.Row{{
		Index:          0,
		URL:            s.server.URL,
		Variant:        string(protocol.VariantC),
		LibraryVersion: "3.2.0-143",
		APIVersion:     2,
		CBL:            "couchbase-lite-c",
	}}, rows)
}

func (s *RootSuite) TestInfoTable() {
	out, err := s.run("--config", s.writeConfig(), "info", "--no-style")
	s.Require().NoError(err)
	s.Contains(out, "VARIANT")
	s.Contains(out, s.server.URL)
	s.Contains(out, "couchbase-lite-c")
}

func (s *RootSuite) TestInfoYAML() {
	out, err := s.run("--config", s.writeConfig(), "info", "--output", "yaml")
	s.Require().NoError(err)
	s.Contains(out, "variant: C")
	s.Contains(out, "apiVersion: 2")
}

func (s *RootSuite) TestUnknownOutputFormat() {
	_, err := s.run("--config", s.writeConfig(), "info", "--output", "xml")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid format")
}

func (s *RootSuite) TestMissingConfig() {
	_, err := s.run("--config", filepath.Join(s.T().TempDir(), "absent.yaml"), "info")
	s.Require().Error(err)
	s.Contains(err.Error(), "reading config file")
}

func (s *RootSuite) TestReset() {
	out, err := s.run("--config", s.writeConfig(), "reset", "--dataset", "names", "--db", "db1,db2")
	s.Require().NoError(err)
	s.Contains(out, "Reset 2 database(s) on 1 test server(s) at protocol version 2")

	s.Require().Len(s.exchanges, 3)
	s.Equal("/", s.exchanges[0].path)
	s.Equal("/newSession", s.exchanges[1].path)
	s.Equal("4.0", s.exchanges[1].body["dataset_version"])
	s.Equal("/reset", s.exchanges[2].path)
	s.Equal("tdk-reset", s.exchanges[2].body["test"])
	s.Equal(map[string]any{
		"db1": map[string]any{"dataset": "names"},
		"db2": map[string]any{"dataset": "names"},
	}, s.exchanges[2].body["databases"])
}

func (s *RootSuite) TestResetRejectsDatasetWithCollections() {
	_, err := s.run("--config", s.writeConfig(), "reset", "--dataset", "names", "--collection", "_default.a")
	s.Require().Error(err)
	s.Empty(s.exchanges)
}
