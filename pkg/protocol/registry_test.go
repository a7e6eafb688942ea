//go:build unit || !integration

package protocol

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/syncbench/tdk/pkg/tdkerrors"
)

type RegistryTestSuite struct {
	suite.Suite
	registry  *Registry
	sessionID uuid.UUID
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	s.registry = MustNewRegistry()
	s.sessionID = uuid.New()
}

func (s *RegistryTestSuite) TestEveryKindHasARoute() {
	for _, kind := range Kinds() {
		s.NotEmpty(kind.Method(), kind.String())
		supported := false
		for v := 0; v <= MaxSupportedVersion; v++ {
			supported = supported || s.registry.Supports(kind, v)
		}
		s.True(supported, "%s is not registered at any version", kind)
	}
}

func (s *RegistryTestSuite) TestDuplicateRegistration() {
	r := NewEmptyRegistry()
	s.Require().NoError(Register[Log](r, KindLog, []int{1}, emptyFor(KindLog)))
	err := Register[Log](r, KindLog, []int{2, 1}, emptyFor(KindLog))
	s.Require().Error(err)
	s.Contains(err.Error(), "version 1 already registered")
	s.False(r.Supports(KindLog, 2), "a failed registration must not be partially applied")
}

func (s *RegistryTestSuite) TestRegisterRejectsForeignPayload() {
	r := NewEmptyRegistry()
	s.Error(Register[Log](r, KindReset, []int{1}, emptyFor(KindReset)))
	s.Error(Register[Log](r, KindLog, nil, emptyFor(KindLog)))
	s.Error(Register[Log](r, KindLog, []int{1}, nil))
}

func (s *RegistryTestSuite) TestCreateRequest() {
	ctx := WithTestName(context.Background(), "test_push")
	req, err := s.registry.CreateRequest(ctx, KindLog, 2, s.sessionID, Log{Message: "hello"})
	s.Require().NoError(err)

	s.Equal(KindLog, req.Kind())
	s.Equal(2, req.Version())
	s.Equal(s.sessionID, req.SessionID())
	s.Equal("log", req.Path())
	name, ok := req.TestName()
	s.True(ok)
	s.Equal("test_push", name)

	body, err := req.Body()
	s.Require().NoError(err)
	s.JSONEq(`{"message":"hello"}`, string(body))
}

func (s *RegistryTestSuite) TestCreateRequestWithoutTestName() {
	req, err := s.registry.CreateRequest(context.Background(), KindRoot, 0, s.sessionID, GetRoot{})
	s.Require().NoError(err)
	_, ok := req.TestName()
	s.False(ok)
	s.False(req.HasBody())
	body, err := req.Body()
	s.NoError(err)
	s.Nil(body)
}

func (s *RegistryTestSuite) TestUnregisteredOperation() {
	_, err := s.registry.CreateRequest(context.Background(), KindNewSession, 1, s.sessionID, NewSession{ID: "x"})
	s.Require().Error(err)
	s.True(tdkerrors.IsProtocolError(err))
	s.Contains(err.Error(), "unregistered operation")
}

func (s *RegistryTestSuite) TestPayloadMismatch() {
	_, err := s.registry.CreateRequest(context.Background(), KindReset, 2, s.sessionID, ResetV1{})
	s.Require().Error(err)
	s.True(tdkerrors.IsProtocolError(err))
	s.Contains(err.Error(), "payload type mismatch")

	_, err = s.registry.CreateRequest(context.Background(), KindReset, 2, s.sessionID, nil)
	s.True(tdkerrors.IsProtocolError(err))
}

func (s *RegistryTestSuite) TestResetShapesDifferByVersion() {
	v1 := ResetV1{}
	v1.AddDataset("names", "db1", "db2")
	req, err := s.registry.CreateRequest(context.Background(), KindReset, 1, s.sessionID, v1)
	s.Require().NoError(err)
	body, _ := req.Body()
	s.JSONEq(`{"datasets":{"names":["db1","db2"]}}`, string(body))

	v2 := Reset{TestName: "t"}
	v2.AddDataset("https://example.com/names", "db1")
	v2.AddEmpty("db2", "_default.a")
	req, err = s.registry.CreateRequest(context.Background(), KindReset, 2, s.sessionID, v2)
	s.Require().NoError(err)
	body, _ = req.Body()
	s.JSONEq(`{"test":"t","databases":{"db1":{"dataset":"https://example.com/names"},"db2":{"collections":["_default.a"]}}}`, string(body))
}

func (s *RegistryTestSuite) TestCreateResponseRequiresServerID() {
	_, err := s.registry.CreateResponse(KindLog, 1, 200, "", nil)
	s.True(tdkerrors.IsProtocolError(err))
}

func (s *RegistryTestSuite) TestCreateResponseTypedBody() {
	resp, err := s.registry.CreateResponse(KindSnapshotDocuments, 2, 200, "srv", decode(`{"id":"snap-1"}`))
	s.Require().NoError(err)
	created, err := BodyAs[Created](resp)
	s.Require().NoError(err)
	s.Equal("snap-1", created.ID)
	s.Equal(KindSnapshotDocuments, created.Kind())

	_, err = BodyAs[VerifyOutcome](resp)
	s.True(tdkerrors.IsProtocolError(err))
}

func (s *RegistryTestSuite) TestCreateResponseMalformed() {
	_, err := s.registry.CreateResponse(KindSnapshotDocuments, 2, 200, "srv", decode(`{"ident":"x"}`))
	s.True(tdkerrors.IsProtocolError(err))
}

func (s *RegistryTestSuite) TestCreateResponseError() {
	resp, err := s.registry.CreateResponse(KindUpdateDatabase, 2, 400, "srv",
		decode(`{"error":{"domain":"CBL","code":12,"message":"conflict"}}`))
	s.Require().NoError(err)
	s.False(resp.Success())
	s.Nil(resp.Body())
	s.Require().NotNil(resp.PeerError())
	s.Equal(tdkerrors.DomainCBL, resp.PeerError().Domain)
	s.Equal(12, resp.PeerError().Code)
}

func (s *RegistryTestSuite) TestRootResponse() {
	resp, err := s.registry.CreateResponse(KindRoot, 2, 200, "srv", decode(`{
		"version": "3.2.0-143",
		"apiVersion": 2,
		"cbl": "couchbase-lite-swift",
		"device": {"model": "iPhone"},
		"additionalInfo": "beta"
	}`))
	s.Require().NoError(err)
	info, err := BodyAs[RootInfo](resp)
	s.Require().NoError(err)
	s.Equal(2, info.APIVersion)
	s.Equal(VariantIOS, info.Variant)
	s.Require().NotNil(info.LibraryVersion)
	s.Equal("3.2.0", info.LibraryVersion.String())
	s.Equal("beta", info.AdditionalInfo)
}

func (s *RegistryTestSuite) TestRootResponseUnknownVariant() {
	resp, err := s.registry.CreateResponse(KindRoot, 2, 200, "srv", decode(`{
		"version": "1.0.0", "apiVersion": 1, "cbl": "couchbase-lite-cobol", "device": {}
	}`))
	s.Require().NoError(err)
	info, err := BodyAs[RootInfo](resp)
	s.Require().NoError(err)
	s.Equal(1, info.APIVersion)
	s.Equal("couchbase-lite-cobol", info.CBL)
	s.Empty(info.Variant)

	_, err = info.ServerVariant()
	s.Require().Error(err)
	s.Contains(err.Error(), "couchbase-lite-cobol")
}

func (s *RegistryTestSuite) TestRootResponseJavaScript() {
	resp, err := s.registry.CreateResponse(KindRoot, 2, 200, "js-server", decode(`{
		"version": "3.2.0", "apiVersion": 2, "cbl": "couchbase-lite-js", "device": {}
	}`))
	s.Require().NoError(err)
	info, err := BodyAs[RootInfo](resp)
	s.Require().NoError(err)
	variant, err := info.ServerVariant()
	s.Require().NoError(err)
	s.Equal(VariantJS, variant)
	s.Equal(2, info.APIVersion)
}

func (s *RegistryTestSuite) TestRootResponseMissingField() {
	_, err := s.registry.CreateResponse(KindRoot, 2, 200, "srv", decode(`{
		"version": "1.0.0", "apiVersion": 1, "device": {}
	}`))
	s.True(tdkerrors.IsProtocolError(err))
}

func (s *RegistryTestSuite) TestReplicatorStatus() {
	resp, err := s.registry.CreateResponse(KindReplicatorStatus, 1, 200, "srv", decode(`{
		"activity": "idle",
		"progress": {"completed": true},
		"documents": [{"collection": "_default._default", "documentID": "d1", "isPush": true, "flags": ["DELETED"]}]
	}`))
	s.Require().NoError(err)
	status, err := BodyAs[ReplicatorStatus](resp)
	s.Require().NoError(err)
	s.Equal(ActivityIdle, status.Activity)
	s.True(status.Completed)
	s.Nil(status.Error)
	s.Require().Len(status.Documents, 1)
	s.Equal([]string{"DELETED"}, status.Documents[0].Flags)
}

func (s *RegistryTestSuite) TestMultipeerStatus() {
	resp, err := s.registry.CreateResponse(KindMultipeerReplicatorStatus, 2, 200, "srv", decode(`{
		"replicators": [
			{"peerID": "p1", "status": {"activity": "IDLE"}},
			{"peerID": "p2", "status": {"activity": "BUSY", "error": {"domain": "POSIX", "code": 61, "message": "refused"}}}
		]
	}`))
	s.Require().NoError(err)
	status, err := BodyAs[MultipeerStatus](resp)
	s.Require().NoError(err)
	s.Require().Len(status.Replicators, 2)
	s.Equal(ActivityBusy, status.Replicators[1].Status.Activity)
	s.Equal(tdkerrors.DomainPOSIX, status.Replicators[1].Status.Error.Domain)
}

func (s *RegistryTestSuite) TestVerifyOutcome() {
	resp, err := s.registry.CreateResponse(KindVerifyDocuments, 2, 200, "srv", decode(`{
		"result": false,
		"description": "mismatch at $.name",
		"expected": null,
		"document": {"name": "b"}
	}`))
	s.Require().NoError(err)
	outcome, err := BodyAs[VerifyOutcome](resp)
	s.Require().NoError(err)
	s.False(outcome.Result)
	s.Equal(Present(nil), outcome.Expected)
	s.Equal(Missing, outcome.Actual)
}

func (s *RegistryTestSuite) TestGetDocument() {
	resp, err := s.registry.CreateResponse(KindGetDocument, 2, 200, "srv",
		decode(`{"_id": "d1", "_revs": "2-a,1-b", "name": "x"}`))
	s.Require().NoError(err)
	doc, err := BodyAs[Document](resp)
	s.Require().NoError(err)
	s.Equal("d1", doc.ID)
	s.Equal(map[string]any{"name": "x"}, doc.Body)
}

func (s *RegistryTestSuite) TestUpdateEntryValid() {
	s.True(DatabaseUpdateEntry{Type: UpdateTypeDelete}.Valid())
	s.False(DatabaseUpdateEntry{Type: UpdateTypeUpdate}.Valid())
	s.True(DatabaseUpdateEntry{Type: UpdateTypeUpdate, RemovedProperties: []string{"a"}}.Valid())
}

func decode(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		panic(err)
	}
	return out
}
