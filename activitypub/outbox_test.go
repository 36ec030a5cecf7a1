package activitypub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deemkeen/federation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	require.NoError(t, err)

	var received []byte
	var sender string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/activity+json", r.Header.Get("Content-Type"))
		actor, err := VerifyRequest(r.Context(), r, keysFor(alice, publicKey))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		sender = actor
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	accept := &domain.Accept{}
	accept.ActorID = alice
	accept.TargetID = "https://b.example/follows/1"
	out, err := GetOutboundEntity(accept, privateKey)
	require.NoError(t, err)

	require.NoError(t, Deliver(context.Background(), server.Client(), out, server.URL+"/inbox", privateKey, "federation/test"))
	assert.Equal(t, alice, sender)

	doc, err := decodeDocument(received)
	require.NoError(t, err)
	assert.Equal(t, "Accept", doc.Type())
	assert.NoError(t, VerifyDocument(doc, publicKey))
}

func TestDeliverReportsRemoteFailure(t *testing.T) {
	privateKey, _, err := generateTestKeyPair()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	out, err := GetOutboundEntity(&domain.Accept{Base: domain.Base{ActorID: alice, TargetID: bob}}, privateKey)
	require.NoError(t, err)
	assert.Error(t, Deliver(context.Background(), server.Client(), out, server.URL+"/inbox", privateKey, "federation/test"))
}
