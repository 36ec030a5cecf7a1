package main

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/deemkeen/federation/activitypub"
	"github.com/deemkeen/federation/db"
	"github.com/deemkeen/federation/domain"
	"github.com/deemkeen/federation/federation"
	"github.com/deemkeen/federation/util"
	"github.com/deemkeen/federation/web"
	"github.com/google/uuid"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	log.Printf("Configuration: %+v", conf.Conf)

	pair, err := util.LoadOrCreateKeypair(util.ResolveFilePath(conf.Conf.KeyFile))
	if err != nil {
		log.Fatalln(err)
	}
	key, err := domain.ParsePrivateKey(pair.Private)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("Signing key fingerprint: %s", util.KeyFingerprint(pair.Public))

	log.Println("Opening database...")
	database := db.GetDB()
	defer database.Close()
	if err, n := database.CountReceivedEntities(); err == nil {
		log.Printf("Database holds %d received entities", n)
	}

	fetcher := activitypub.NewFetcher(database, time.Duration(conf.Conf.CacheHours)*time.Hour, util.UserAgent())
	h := &hooks{
		db:          database,
		fetcher:     fetcher,
		key:         key,
		userAgent:   util.UserAgent(),
		domain:      conf.Conf.SslDomain,
		localActors: conf.Conf.LocalActors,
	}

	mapper, err := federation.NewMapper(
		federation.WithProtocolOrder(conf.ProtocolOrder()...),
		federation.WithKeyLookup(fetcher),
		federation.WithProfileLookup(fetcher),
		federation.WithDiagnostics(federation.NewLogger(os.Stderr, charmlog.InfoLevel)),
		federation.WithHook(domain.VariantFollow, h.follow),
		federation.WithHook(domain.VariantProfile, h.profile),
		federation.WithHook(domain.VariantRetraction, h.retraction),
	)
	if err != nil {
		log.Fatalln(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recv := web.NewReceiver(mapper, fetcher, h.record)
	go func() {
		if err := web.Router(ctx, conf, recv); err != nil {
			log.Fatalln(err)
		}
	}()

	<-ctx.Done()
	log.Println("Stopping federation receiver")
}

// hooks persist the state changes carried by inbound entities.
type hooks struct {
	db        *db.DB
	fetcher   *activitypub.Fetcher
	key       *rsa.PrivateKey
	userAgent string
	// domain and localActors decide which follow targets live here
	domain      string
	localActors []string
}

func canonical(e domain.Entity) domain.Entity {
	if s, ok := e.(domain.Specific); ok {
		return s.Canonical()
	}
	return e
}

func (h *hooks) record(ctx context.Context, protocol string, entities []domain.Entity) {
	for _, e := range entities {
		err, inserted := h.db.RecordReceivedEntity(domain.NewReceivedEntity(e))
		if err != nil {
			log.Printf("Inbox: Failed to record %s from %s: %v", e.Kind(), e.Common().ActorID, err)
			continue
		}
		if inserted {
			continue
		}
		rec := domain.NewReceivedEntity(e)
		if err, first := h.db.ReadReceivedEntity(rec.Protocol, rec.EntityID); err == nil {
			log.Printf("Inbox: Duplicate %s %s, first seen %s", e.Kind(), rec.EntityID, first.CreatedAt.Format(time.RFC3339))
		}
	}
}

func (h *hooks) follow(ctx context.Context, e domain.Entity, profiles domain.ProfileLookup) error {
	f, ok := canonical(e).(*domain.Follow)
	if !ok {
		return fmt.Errorf("unexpected follow entity %T", e)
	}
	if !h.isLocal(e, f.TargetID) {
		log.Printf("Inbox: Ignoring follow of %s, not an actor of this server", f.TargetID)
		return nil
	}
	if !f.Following {
		return h.db.DeleteRelationship(f.ActorID, f.TargetID)
	}
	rel := &domain.Relationship{
		Id:        uuid.New(),
		ActorID:   f.ActorID,
		TargetID:  f.TargetID,
		Protocol:  e.Common().SourceProtocol,
		CreatedAt: time.Now(),
	}
	if err := h.db.CreateRelationship(rel); err != nil {
		return err
	}
	if err, followers := h.db.ReadFollowers(f.TargetID); err == nil {
		log.Printf("Inbox: %s now has %d followers", f.TargetID, len(*followers))
	}
	if e.Common().SourceProtocol == activitypub.ProtocolName {
		go h.accept(f)
	}
	return nil
}

// isLocal reports whether target is an actor of this server. An
// ActivityPub payload delivered to a personal inbox may only address its
// owner.
func (h *hooks) isLocal(e domain.Entity, target string) bool {
	if target == "" {
		return false
	}
	base := e.Common()
	if base.SourceProtocol == activitypub.ProtocolName && base.ReceivingActorID != "" {
		return target == base.ReceivingActorID
	}
	if slices.Contains(h.localActors, target) {
		return true
	}
	if h.domain == "" {
		return false
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" {
		return strings.EqualFold(u.Host, h.domain) && strings.HasPrefix(u.Path, "/users/")
	}
	return strings.HasSuffix(strings.ToLower(target), "@"+strings.ToLower(h.domain))
}

// accept answers an ActivityPub follow with a signed Accept.
func (h *hooks) accept(f *domain.Follow) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	follower, err := h.fetcher.GetOrFetchActor(ctx, f.ActorID)
	if err != nil {
		log.Printf("Outbox: Failed to resolve follower %s: %v", f.ActorID, err)
		return
	}
	accept := &domain.Accept{Base: domain.Base{ActorID: f.TargetID, TargetID: f.ID}}
	out, err := activitypub.GetOutboundEntity(accept, h.key)
	if err != nil {
		log.Printf("Outbox: Failed to build Accept for %s: %v", f.ActorID, err)
		return
	}
	if err := activitypub.Deliver(ctx, nil, out, follower.InboxURI, h.key, h.userAgent); err != nil {
		log.Printf("Outbox: Failed to deliver Accept to %s: %v", follower.InboxURI, err)
		return
	}
	if err := h.db.AcceptRelationship(f.ActorID, f.TargetID); err != nil {
		log.Printf("Outbox: Failed to mark %s as accepted: %v", f.ActorID, err)
	}
}

func (h *hooks) profile(ctx context.Context, e domain.Entity, profiles domain.ProfileLookup) error {
	p, ok := canonical(e).(*domain.Profile)
	if !ok {
		return fmt.Errorf("unexpected profile entity %T", e)
	}
	actor := &domain.RemoteActor{
		Id:            uuid.New(),
		Protocol:      e.Common().SourceProtocol,
		Identifier:    p.ID,
		DisplayName:   p.Name,
		Summary:       p.RawContent,
		PublicKeyPem:  p.PublicKey,
		AvatarURL:     p.ImageURLs["large"],
		LastFetchedAt: time.Now(),
	}
	if u, err := url.Parse(p.ID); err == nil && u.Host != "" {
		actor.Domain = u.Host
	}
	if err, cached := h.db.ReadRemoteActor(p.ID); err == nil {
		actor.Username = cached.Username
		actor.InboxURI = cached.InboxURI
		if actor.PublicKeyPem == "" {
			actor.PublicKeyPem = cached.PublicKeyPem
		}
	}
	return h.db.SaveRemoteActor(actor)
}

func (h *hooks) retraction(ctx context.Context, e domain.Entity, profiles domain.ProfileLookup) error {
	r, ok := canonical(e).(*domain.Retraction)
	if !ok {
		return fmt.Errorf("unexpected retraction entity %T", e)
	}
	if r.EntityType != domain.VariantProfile.String() {
		return nil
	}
	return h.db.DeleteRemoteActor(r.TargetID)
}
