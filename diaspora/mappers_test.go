package diaspora

import (
	"context"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/federation/activitypub"
	"github.com/deemkeen/federation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func canonicalize(t *testing.T, body string) []domain.Candidate {
	t.Helper()
	wire, err := New().Parse(domain.NewRequest(body))
	require.NoError(t, err)
	return New().Canonicalize(wire)
}

func onlyEntity(t *testing.T, body string) domain.Entity {
	t.Helper()
	candidates := canonicalize(t, body)
	require.Len(t, candidates, 1)
	require.NoError(t, candidates[0].Err)
	return candidates[0].Entity
}

func onlyCandidate(t *testing.T, body string) domain.Candidate {
	t.Helper()
	candidates := canonicalize(t, body)
	require.Len(t, candidates, 1)
	return candidates[0]
}

func keysFor(keys map[string]*rsa.PrivateKey) domain.KeyLookup {
	return domain.KeyLookupFunc(func(ctx context.Context, id string) (*rsa.PublicKey, error) {
		key, ok := keys[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		return &key.PublicKey, nil
	})
}

// xmlOf renders fields as an entity element in the given order.
func xmlOf(t *testing.T, tag string, f []field) string {
	t.Helper()
	b, err := marshalEntity(tag, f)
	require.NoError(t, err)
	return string(b)
}

// signedComment is a comment by author, its fields in the given order.
func signedComment(t *testing.T, key *rsa.PrivateKey, f []field) string {
	t.Helper()
	sig, err := signFields(f, key)
	require.NoError(t, err)
	return xmlOf(t, "comment", append(f, field{"author_signature", sig}))
}

func wrap(t *testing.T, payload, author string, key *rsa.PrivateKey) string {
	t.Helper()
	env, err := NewEnvelope([]byte(payload), author, key)
	require.NoError(t, err)
	b, err := env.Marshal()
	require.NoError(t, err)
	return string(b)
}

func TestLegacyStatusMessage(t *testing.T) {
	e := onlyEntity(t, legacyPost)

	post, ok := e.(*Post)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, "((status message))", post.RawContent)
	assert.Equal(t, "((guid))", post.ID)
	assert.Equal(t, alice, post.ActorID)
	assert.False(t, post.Public)
	assert.True(t, post.CreatedAt.Equal(time.Date(2011, 7, 20, 1, 36, 7, 0, time.UTC)))
	assert.Equal(t, domain.Kind{Protocol: ProtocolName, Variant: domain.VariantPost}, post.Kind())
	assert.NoError(t, post.Validate())
}

func TestStatusMessageWithPhoto(t *testing.T) {
	e := onlyEntity(t, `<status_message>
		<author>alice@alice.diaspora.example.org</author>
		<guid>post-guid-1</guid>
		<created_at>2019-03-01T10:00:00Z</created_at>
		<public>true</public>
		<text>look at this</text>
		<photo>
			<guid>photo-guid-1</guid>
			<remote_photo_path>https://alice.diaspora.example.org/uploads/images/</remote_photo_path>
			<remote_photo_name>cat.jpg</remote_photo_name>
			<height>480</height>
			<width>640</width>
		</photo>
	</status_message>`)

	post := e.(*Post)
	assert.Equal(t, "look at this", post.RawContent)
	assert.True(t, post.Public)
	require.Len(t, post.Children, 1)
	img, ok := post.Children[0].(*domain.Image)
	require.True(t, ok, "got %T", post.Children[0])
	assert.Equal(t, "photo-guid-1", img.ID)
	assert.Equal(t, alice, img.ActorID)
	assert.Equal(t, "post-guid-1", img.LinkedID)
	assert.Equal(t, "Post", img.LinkedType)
	assert.Equal(t, 480, img.Height)
	assert.Equal(t, 640, img.Width)
	assert.Equal(t, []string{"https://alice.diaspora.example.org/uploads/images/cat.jpg"}, post.MediaURLs)
	assert.NoError(t, img.Validate())
}

func TestStatusMessageWithBrokenPhoto(t *testing.T) {
	c := onlyCandidate(t, `<status_message>
		<author>alice@alice.diaspora.example.org</author>
		<guid>post-guid-2</guid>
		<created_at>2019-03-01T10:00:00Z</created_at>
		<public>true</public>
		<text>look at this</text>
		<photo>
			<guid>photo-guid-2</guid>
			<remote_photo_path>https://alice.diaspora.example.org/uploads/images/</remote_photo_path>
			<remote_photo_name>cat.jpg</remote_photo_name>
			<height>tall</height>
		</photo>
	</status_message>`)

	require.NoError(t, c.Err)
	post := c.Entity.(*Post)
	assert.Equal(t, "look at this", post.RawContent)
	assert.Empty(t, post.Children)
	assert.Empty(t, post.MediaURLs)
	require.Len(t, c.ChildErrs, 1)
	assert.ErrorIs(t, c.ChildErrs[0], domain.ErrValidation)
	assert.Contains(t, c.ChildErrs[0].Error(), "post-guid-2")
}

func TestInvalidTimestamp(t *testing.T) {
	c := onlyCandidate(t, `<status_message><author>`+alice+`</author><guid>1</guid><created_at>yesterday</created_at></status_message>`)
	assert.ErrorIs(t, c.Err, domain.ErrValidation)
	assert.Equal(t, alice, c.Handle)
}

func TestCommentAuthorSignature(t *testing.T) {
	aliceKey, bobKey := newKey(t), newKey(t)
	keys := keysFor(map[string]*rsa.PrivateKey{alice: aliceKey, bob: bobKey})
	ordered := []field{
		{"guid", "comment-guid-1"},
		{"parent_guid", "post-guid-1"},
		{"text", "nice post"},
		{"author", bob},
	}

	t.Run("relayed by the parent author", func(t *testing.T) {
		body := wrap(t, signedComment(t, bobKey, ordered), alice, aliceKey)
		c := onlyCandidate(t, body)
		require.NoError(t, c.Err)

		comment := c.Entity.(*Comment)
		assert.Equal(t, bob, comment.ActorID)
		assert.Equal(t, "post-guid-1", comment.TargetID)
		assert.Equal(t, "nice post", comment.RawContent)
		assert.NoError(t, New().Verify(context.Background(), c, "", keys))
	})

	t.Run("received order is kept", func(t *testing.T) {
		reordered := []field{ordered[3], ordered[2], ordered[0], ordered[1]}
		body := wrap(t, signedComment(t, bobKey, reordered), alice, aliceKey)
		c := onlyCandidate(t, body)
		require.NoError(t, c.Err)
		assert.NoError(t, New().Verify(context.Background(), c, "", keys))
	})

	t.Run("tampered text", func(t *testing.T) {
		sig, err := signFields(ordered, bobKey)
		require.NoError(t, err)
		tampered := append([]field{}, ordered...)
		tampered[2] = field{"text", "spam"}
		body := wrap(t, xmlOf(t, "comment", append(tampered, field{"author_signature", sig})), alice, aliceKey)
		c := onlyCandidate(t, body)
		require.NoError(t, c.Err)
		assert.ErrorIs(t, New().Verify(context.Background(), c, "", keys), domain.ErrAuthentication)
	})

	t.Run("relayed without author signature", func(t *testing.T) {
		body := wrap(t, xmlOf(t, "comment", ordered), alice, aliceKey)
		c := onlyCandidate(t, body)
		require.NoError(t, c.Err)
		assert.ErrorIs(t, New().Verify(context.Background(), c, "", keys), domain.ErrAuthentication)
	})

	t.Run("sent by the author without author signature", func(t *testing.T) {
		body := wrap(t, xmlOf(t, "comment", ordered), bob, bobKey)
		c := onlyCandidate(t, body)
		require.NoError(t, c.Err)
		assert.NoError(t, New().Verify(context.Background(), c, "", keys))
	})
}

func TestRelayableMissingFields(t *testing.T) {
	c := onlyCandidate(t, `<comment><guid>1</guid><text>hi</text><author>`+bob+`</author></comment>`)
	assert.ErrorIs(t, c.Err, domain.ErrValidation)
	assert.Contains(t, c.Err.Error(), "target_guid")
	assert.Equal(t, bob, c.Handle)

	c = onlyCandidate(t, `<like><guid>1</guid><parent_guid>2</parent_guid><author>`+bob+`</author></like>`)
	assert.ErrorIs(t, c.Err, domain.ErrValidation)
}

func TestLike(t *testing.T) {
	e := onlyEntity(t, `<like><parent_type>Post</parent_type><guid>like-1</guid><parent_guid>post-1</parent_guid><positive>true</positive><author>`+bob+`</author></like>`)
	like := e.(*Reaction)
	assert.Equal(t, "like", like.Reaction.Reaction)
	assert.Equal(t, "post-1", like.TargetID)
	assert.NoError(t, like.Validate())

	e = onlyEntity(t, `<like><parent_type>Post</parent_type><guid>like-2</guid><parent_guid>post-1</parent_guid><positive>false</positive><author>`+bob+`</author></like>`)
	assert.ErrorIs(t, e.Validate(), domain.ErrValidation)
}

func TestContactAndRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		variant   domain.Variant
		following bool
	}{
		{"request", `<request><sender_handle>` + bob + `</sender_handle><recipient_handle>` + alice + `</recipient_handle></request>`, domain.VariantFollow, true},
		{"follow", `<contact><author>` + bob + `</author><recipient>` + alice + `</recipient><following>true</following><sharing>true</sharing></contact>`, domain.VariantFollow, true},
		{"unfollow", `<contact><author>` + bob + `</author><recipient>` + alice + `</recipient><following>false</following><sharing>false</sharing></contact>`, domain.VariantFollow, false},
		{"accept", `<contact><author>` + bob + `</author><recipient>` + alice + `</recipient><following>false</following><sharing>true</sharing></contact>`, domain.VariantAccept, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := onlyEntity(t, tt.body)
			assert.Equal(t, tt.variant, e.Kind().Variant)
			assert.Equal(t, bob, e.Common().ActorID)
			assert.Equal(t, alice, e.Common().TargetID)
			if f, ok := e.(*Follow); ok {
				assert.Equal(t, tt.following, f.Following)
			}
			assert.NoError(t, e.Validate())
		})
	}
}

func TestRetractionTargetTypes(t *testing.T) {
	tests := map[string]string{
		"StatusMessage": "Post",
		"Post":          "Post",
		"Comment":       "Comment",
		"Like":          "Reaction",
		"Photo":         "Image",
		"Person":        "Profile",
		"Reshare":       "Reshare",
		"Poll":          "Poll",
	}
	for wire, want := range tests {
		t.Run(wire, func(t *testing.T) {
			e := onlyEntity(t, `<retraction><author>`+bob+`</author><target_guid>x-1</target_guid><target_type>`+wire+`</target_type></retraction>`)
			r := e.(*Retraction)
			assert.Equal(t, want, r.EntityType)
			assert.Equal(t, "x-1", r.TargetID)
			assert.NoError(t, r.Validate())
		})
	}

	e := onlyEntity(t, `<signed_retraction><sender_handle>`+bob+`</sender_handle><target_guid>x-2</target_guid><target_type>StatusMessage</target_type></signed_retraction>`)
	assert.Equal(t, "Post", e.(*Retraction).EntityType)
}

func TestLegacyRetractionType(t *testing.T) {
	e := onlyEntity(t, `<retraction><diaspora_handle>`+bob+`</diaspora_handle><post_guid>x-3</post_guid><type>Person</type></retraction>`)
	r := e.(*Retraction)
	assert.Equal(t, "Profile", r.EntityType)
	assert.Equal(t, "x-3", r.TargetID)
}

func TestTypeFieldOnlyNamesRetractionTargets(t *testing.T) {
	c := onlyCandidate(t, xmlOf(t, "reshare", []field{
		{"author", bob},
		{"guid", "reshare-2"},
		{"root_author", alice},
		{"root_guid", "post-1"},
		{"type", "Profile"},
	}))

	require.NoError(t, c.Err)
	assert.Equal(t, "Post", c.Entity.(*Reshare).EntityType)
}

func TestReshareRules(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		want       string
		wantErr    bool
	}{
		{name: "default", want: "Post"},
		{name: "explicit post", entityType: "StatusMessage", want: "Post"},
		{name: "explicit comment", entityType: "Comment", want: "Comment"},
		{name: "unknown", entityType: "Profile", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := []field{
				{"author", bob},
				{"guid", "reshare-1"},
				{"root_author", alice},
				{"root_guid", "post-1"},
				{"text", "worth reading"},
			}
			if tt.entityType != "" {
				f = append(f, field{"entity_type", tt.entityType})
			}
			c := onlyCandidate(t, xmlOf(t, "reshare", f))
			if tt.wantErr {
				assert.ErrorIs(t, c.Err, domain.ErrValidation)
				return
			}
			require.NoError(t, c.Err)
			r := c.Entity.(*Reshare)
			assert.Equal(t, tt.want, r.EntityType)
			assert.Equal(t, alice, r.TargetActorID)
			assert.Equal(t, "post-1", r.TargetID)
			assert.Equal(t, "worth reading", r.RawContent)
			assert.NoError(t, r.Validate())
		})
	}
}

func TestProfile(t *testing.T) {
	e := onlyEntity(t, `<profile>
		<author>`+alice+`</author>
		<first_name>Alice</first_name>
		<last_name>Liddell</last_name>
		<image_url>https://alice.diaspora.example.org/large.png</image_url>
		<image_url_small>https://alice.diaspora.example.org/small.png</image_url_small>
		<bio>down the rabbit hole</bio>
		<searchable>true</searchable>
		<nsfw>false</nsfw>
		<tag_string>#tea #rabbits</tag_string>
	</profile>`)

	p := e.(*Profile)
	assert.Equal(t, alice, p.ID)
	assert.Equal(t, "Alice Liddell", p.Name)
	assert.Equal(t, "down the rabbit hole", p.RawContent)
	assert.True(t, p.Public)
	assert.False(t, p.NSFW)
	assert.Equal(t, []string{"tea", "rabbits"}, p.TagList)
	assert.Equal(t, map[string]string{
		"large": "https://alice.diaspora.example.org/large.png",
		"small": "https://alice.diaspora.example.org/small.png",
	}, p.ImageURLs)
	assert.NoError(t, p.Validate())
}

func TestVerifyNonRelayable(t *testing.T) {
	aliceKey, bobKey := newKey(t), newKey(t)
	keys := keysFor(map[string]*rsa.PrivateKey{alice: aliceKey, bob: bobKey})
	ctx := context.Background()

	t.Run("bare payload from the author", func(t *testing.T) {
		c := onlyCandidate(t, legacyPost)
		assert.NoError(t, New().Verify(ctx, c, alice, keys))
	})
	t.Run("bare payload from someone else", func(t *testing.T) {
		c := onlyCandidate(t, legacyPost)
		assert.ErrorIs(t, New().Verify(ctx, c, bob, keys), domain.ErrAuthentication)
	})
	t.Run("bare payload without sender", func(t *testing.T) {
		c := onlyCandidate(t, legacyPost)
		assert.ErrorIs(t, New().Verify(ctx, c, "", keys), domain.ErrAuthentication)
	})
	t.Run("envelope by the author", func(t *testing.T) {
		c := onlyCandidate(t, wrap(t, legacyPost, alice, aliceKey))
		assert.NoError(t, New().Verify(ctx, c, "", keys))
	})
	t.Run("legacy envelope by the author", func(t *testing.T) {
		c := onlyCandidate(t, legacyEnvelope(t, legacyPost, alice, aliceKey))
		assert.NoError(t, New().Verify(ctx, c, "", keys))
	})
	t.Run("envelope by someone else", func(t *testing.T) {
		c := onlyCandidate(t, wrap(t, legacyPost, bob, bobKey))
		assert.ErrorIs(t, New().Verify(ctx, c, "", keys), domain.ErrAuthentication)
	})
	t.Run("envelope signed with another key", func(t *testing.T) {
		c := onlyCandidate(t, wrap(t, legacyPost, alice, bobKey))
		assert.ErrorIs(t, New().Verify(ctx, c, "", keys), domain.ErrAuthentication)
	})
	t.Run("unknown signer", func(t *testing.T) {
		c := onlyCandidate(t, wrap(t, legacyPost, alice, aliceKey))
		err := New().Verify(ctx, c, "", keysFor(nil))
		assert.ErrorIs(t, err, domain.ErrAuthentication)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("no key lookup", func(t *testing.T) {
		c := onlyCandidate(t, wrap(t, legacyPost, alice, aliceKey))
		assert.ErrorIs(t, New().Verify(ctx, c, "", nil), domain.ErrAuthentication)
	})
}

func canonicalOf(t *testing.T, v domain.Variant) domain.Entity {
	t.Helper()
	e, err := domain.New(v)
	require.NoError(t, err)
	base := e.Common()
	base.ActorID = alice
	base.TargetID = "target-1"
	base.RawContent = "hello"
	switch c := e.(type) {
	case *domain.Retraction:
		c.EntityType = "Post"
	case *domain.Reshare:
		c.TargetActorID = bob
	case *domain.Image:
		c.RemotePath = "https://alice.diaspora.example.org/uploads/"
		c.RemoteName = "a.png"
	}
	return e
}

func TestGetOutboundEntityCoversEveryVariant(t *testing.T) {
	key := newKey(t)
	for _, v := range domain.Variants() {
		t.Run(v.String(), func(t *testing.T) {
			out, err := GetOutboundEntity(canonicalOf(t, v), key)
			require.NoError(t, err)
			assert.Equal(t, domain.Kind{Protocol: ProtocolName, Variant: v}, out.Kind())
			assert.NotEmpty(t, out.Signature())
			assert.NotNil(t, out.signing().Envelope)
			assert.NoError(t, out.Validate())
		})
	}
	assert.Equal(t, domain.Variants(), New().Variants())
}

func TestOutboundRelayableSignatures(t *testing.T) {
	key := newKey(t)
	out, err := GetOutboundEntity(canonicalOf(t, domain.VariantComment), key)
	require.NoError(t, err)

	comment := out.(*Comment)
	assert.NotEmpty(t, comment.ID)
	assert.Equal(t, comment.AuthorSignature, comment.ParentAuthorSignature)
	assert.NoError(t, verifyFields(comment.fields(), comment.AuthorSignature, &key.PublicKey))
}

func TestOutboundKeepsExistingSignature(t *testing.T) {
	key := newKey(t)
	like := &Reaction{Reaction: domain.Reaction{Base: domain.Base{ID: "l-1", ActorID: bob, TargetID: "p-1"}, Reaction: "like"}}
	like.AuthorSignature = "existing"

	rendered, err := Render(like, key)
	require.NoError(t, err)
	assert.Equal(t, "existing", like.AuthorSignature)
	assert.Equal(t, "existing", like.ParentAuthorSignature)

	msg, err := ParseMessage(rendered)
	require.NoError(t, err)
	assert.Equal(t, "existing", msg.Entity.child("author_signature").Text)
}

func TestGetOutboundEntityIdempotent(t *testing.T) {
	key := newKey(t)
	out, err := GetOutboundEntity(canonicalOf(t, domain.VariantPost), key)
	require.NoError(t, err)

	again, err := GetOutboundEntity(out, nil)
	require.NoError(t, err)
	assert.Same(t, out, again)
}

func TestGetOutboundEntityFromOtherProtocol(t *testing.T) {
	key := newKey(t)
	ap, err := activitypub.GetOutboundEntity(canonicalOf(t, domain.VariantFollow), key)
	require.NoError(t, err)

	out, err := GetOutboundEntity(ap, key)
	require.NoError(t, err)
	assert.Equal(t, domain.Kind{Protocol: ProtocolName, Variant: domain.VariantFollow}, out.Kind())
	assert.Equal(t, alice, out.Common().ActorID)
}

func TestGetOutboundEntityErrors(t *testing.T) {
	_, err := GetOutboundEntity(canonicalOf(t, domain.VariantPost), nil)
	assert.ErrorIs(t, err, domain.ErrMissingSigningKey)

	_, err = GetOutboundEntity(&domain.Post{}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingSigningKey)

	_, err = Render(&Post{Post: domain.Post{Base: domain.Base{ActorID: alice}}}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingSigningKey)
}

func TestOutboundDoesNotTouchCanonicalChildren(t *testing.T) {
	key := newKey(t)
	post := canonicalOf(t, domain.VariantPost).(*domain.Post)
	img := &domain.Image{RemotePath: "https://alice.diaspora.example.org/", RemoteName: "x.png"}
	post.Children = []domain.Entity{img}

	_, err := GetOutboundEntity(post, key)
	require.NoError(t, err)
	assert.Empty(t, post.ID)
	assert.Empty(t, img.ID)
}

func TestRenderRoundTrip(t *testing.T) {
	aliceKey := newKey(t)
	keys := keysFor(map[string]*rsa.PrivateKey{alice: aliceKey})

	post := canonicalOf(t, domain.VariantPost).(*domain.Post)
	post.Public = true
	post.RawContent = "line one\r\nline two; with a semicolon & <markup>"
	post.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	post.Children = []domain.Entity{&domain.Image{RemotePath: "https://alice.diaspora.example.org/", RemoteName: "x.png", Width: 10, Height: 20}}

	tests := []struct {
		name   string
		entity domain.Entity
		check  func(t *testing.T, e domain.Entity)
	}{
		{"post", post, func(t *testing.T, e domain.Entity) {
			p := e.(*Post)
			assert.Equal(t, "line one\nline two; with a semicolon & <markup>", p.RawContent)
			assert.True(t, p.Public)
			assert.True(t, p.CreatedAt.Equal(post.CreatedAt))
			require.Len(t, p.Children, 1)
			assert.Equal(t, p.ID, p.Children[0].(*domain.Image).LinkedID)
		}},
		{"comment", canonicalOf(t, domain.VariantComment), func(t *testing.T, e domain.Entity) {
			assert.Equal(t, "target-1", e.(*Comment).TargetID)
		}},
		{"reaction", canonicalOf(t, domain.VariantReaction), func(t *testing.T, e domain.Entity) {
			assert.Equal(t, "like", e.(*Reaction).Reaction.Reaction)
		}},
		{"follow", canonicalOf(t, domain.VariantFollow), func(t *testing.T, e domain.Entity) {
			assert.True(t, e.(*Follow).Following)
		}},
		{"accept", canonicalOf(t, domain.VariantAccept), func(t *testing.T, e domain.Entity) {
			assert.Equal(t, "target-1", e.(*Accept).TargetID)
		}},
		{"reshare of a comment", &domain.Reshare{Base: domain.Base{ActorID: alice, TargetID: "c-1"}, TargetActorID: bob, EntityType: "Comment"}, func(t *testing.T, e domain.Entity) {
			assert.Equal(t, "Comment", e.(*Reshare).EntityType)
		}},
		{"retraction", canonicalOf(t, domain.VariantRetraction), func(t *testing.T, e domain.Entity) {
			assert.Equal(t, "Post", e.(*Retraction).EntityType)
		}},
		{"profile", &domain.Profile{Base: domain.Base{ActorID: alice, Public: true}, Name: "Alice", TagList: []string{"tea"}}, func(t *testing.T, e domain.Entity) {
			p := e.(*Profile)
			assert.Equal(t, "Alice", p.Name)
			assert.Equal(t, []string{"tea"}, p.TagList)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := GetOutboundEntity(tt.entity, aliceKey)
			require.NoError(t, err)
			rendered, err := New().Render(out, nil)
			require.NoError(t, err)
			require.True(t, IdentifyRequest(domain.NewRequest(rendered)))

			c := onlyCandidate(t, string(rendered))
			require.NoError(t, c.Err)
			assert.Equal(t, tt.entity.Kind().Variant, c.Entity.Kind().Variant)
			assert.Equal(t, alice, c.Entity.Common().ActorID)
			assert.NoError(t, c.Entity.Validate())
			assert.NoError(t, New().Verify(context.Background(), c, "", keys))
			tt.check(t, c.Entity)
		})
	}
}

func TestRenderRejectsForeignEntities(t *testing.T) {
	key := newKey(t)
	ap, err := activitypub.GetOutboundEntity(canonicalOf(t, domain.VariantPost), key)
	require.NoError(t, err)

	_, err = New().Render(ap, key)
	assert.ErrorIs(t, err, domain.ErrUnmappedVariant)
}

func TestCanonicalizeUnexpectedWire(t *testing.T) {
	candidates := New().Canonicalize("not a message")
	require.Len(t, candidates, 1)
	assert.ErrorIs(t, candidates[0].Err, domain.ErrValidation)
	assert.True(t, strings.Contains(candidates[0].Err.Error(), "string"))
}
