////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"
	"google.golang.org/api/option"

	"gitlab.com/elixxir/staffcomms/badge"
	"gitlab.com/elixxir/staffcomms/directory"
	"gitlab.com/elixxir/staffcomms/dm"
	dmfs "gitlab.com/elixxir/staffcomms/dm/firestore"
	"gitlab.com/elixxir/staffcomms/dm/storage"
	"gitlab.com/elixxir/staffcomms/event"
	"gitlab.com/elixxir/staffcomms/push"
	"gitlab.com/elixxir/staffcomms/storage/versioned"
)

// config is the backend selection read from viper.
type config struct {
	StoreBackend         string
	FirestoreProject     string
	FirestoreCredentials string
	DirectoryBackend     string
	RosterPath           string
	CacheTTL             time.Duration
	PushProvider         string
	ExpoToken            string
	FcmProject           string
	FcmCredentials       string
	PushRate             int
	LedgerPath           string
	LedgerPassword       string
	AlertsBackend        string
	PollInterval         time.Duration
	Params               dm.Params
}

func loadConfig() config {
	return config{
		StoreBackend:         viper.GetString(storeBackendFlag),
		FirestoreProject:     viper.GetString(firestoreProjectFlag),
		FirestoreCredentials: viper.GetString(firestoreCredentialsFlag),
		DirectoryBackend:     viper.GetString(directoryBackendFlag),
		RosterPath:           viper.GetString(directoryRosterFlag),
		CacheTTL:             viper.GetDuration(directoryCacheTTLFlag),
		PushProvider:         viper.GetString(pushProviderFlag),
		ExpoToken:            viper.GetString(pushExpoTokenFlag),
		FcmProject:           viper.GetString(pushFcmProjectFlag),
		FcmCredentials:       viper.GetString(pushFcmCredentialsFlag),
		PushRate:             viper.GetInt(pushRateFlag),
		LedgerPath:           viper.GetString(ledgerPathFlag),
		LedgerPassword:       viper.GetString(ledgerPasswordFlag),
		AlertsBackend:        viper.GetString(alertsBackendFlag),
		PollInterval:         viper.GetDuration(alertsPollIntervalFlag),
		Params: dm.Params{
			StoreTimeout:  viper.GetDuration(storeTimeoutFlag),
			LookupTimeout: viper.GetDuration(lookupTimeoutFlag),
			PushTimeout:   viper.GetDuration(pushTimeoutFlag),
		},
	}
}

// backends holds everything a command needs to run a dm.Client.
type backends struct {
	client dm.Client
	store  dm.Store
	dir    directory.Directory
	alerts badge.AlertSource
	events event.Manager

	fsClient *fs.Client
	closers  []func() error
}

// initBackends builds the configured store, directory, push provider and
// ledger and wires them into a dm.Client.
func initBackends(ctx context.Context, cfg config) (_ *backends, err error) {
	b := &backends{events: event.NewEventManager()}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	err = b.events.RegisterEventCallback("log", event.PriorityInfo, logEvent)
	if err != nil {
		return nil, err
	}
	reporting, err := b.events.EventService()
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() error {
		if n := b.events.Dropped(); n > 0 {
			jww.WARN.Printf("%d events were dropped on a full queue", n)
		}
		return reporting.Close()
	})

	if err = b.initStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err = b.initDirectory(ctx, cfg); err != nil {
		return nil, err
	}
	dispatcher, err := initPush(ctx, cfg)
	if err != nil {
		return nil, err
	}
	kv, err := initLedger(cfg)
	if err != nil {
		return nil, err
	}
	if err = b.initAlerts(ctx, cfg); err != nil {
		return nil, err
	}

	b.client = dm.NewClient(b.store, b.dir, dispatcher, kv, b.events, cfg.Params)
	b.closers = append(b.closers, b.client.Close)
	return b, nil
}

// logEvent writes reported events to the log at their priority.
func logEvent(evt event.Event) {
	switch {
	case evt.Priority <= event.PriorityError:
		jww.ERROR.Printf("[%s] %s: %s", evt.Category, evt.Type, evt.Details)
	case evt.Priority <= event.PriorityWarning:
		jww.WARN.Printf("[%s] %s: %s", evt.Category, evt.Type, evt.Details)
	default:
		jww.INFO.Printf("[%s] %s: %s", evt.Category, evt.Type, evt.Details)
	}
}

// Close releases the backends in reverse order of creation.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			jww.WARN.Printf("Failed to close backend: %+v", err)
		}
	}
	b.closers = nil
}

// firestore returns the shared Firestore client, connecting on first use.
func (b *backends) firestore(ctx context.Context, cfg config) (*fs.Client, error) {
	if b.fsClient != nil {
		return b.fsClient, nil
	}
	if cfg.FirestoreProject == "" {
		return nil, errors.Errorf("%s is required for Firestore backends",
			firestoreProjectFlag)
	}
	var opts []option.ClientOption
	if cfg.FirestoreCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredentials))
	}
	client, err := fs.NewClient(ctx, cfg.FirestoreProject, opts...)
	if err != nil {
		return nil, errors.Errorf("failed to connect to Firestore project "+
			"%s: %+v", cfg.FirestoreProject, err)
	}
	jww.INFO.Printf("Connected to Firestore project %s", cfg.FirestoreProject)
	b.fsClient = client
	b.closers = append(b.closers, client.Close)
	return client, nil
}

func (b *backends) initStore(ctx context.Context, cfg config) error {
	switch cfg.StoreBackend {
	case "", "memory":
		s := storage.NewStore()
		b.store = s
		b.closers = append(b.closers, s.Close)
	case "firestore":
		client, err := b.firestore(ctx, cfg)
		if err != nil {
			return err
		}
		s := dmfs.NewStore(client)
		b.store = s
		b.closers = append(b.closers, s.Close)
	default:
		return errors.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	jww.INFO.Printf("Using %s message store", b.storeName(cfg))
	return nil
}

func (b *backends) storeName(cfg config) string {
	if cfg.StoreBackend == "" {
		return "memory"
	}
	return cfg.StoreBackend
}

func (b *backends) initDirectory(ctx context.Context, cfg config) error {
	var dir directory.Directory
	switch cfg.DirectoryBackend {
	case "", "roster":
		roster, err := directory.LoadRoster(cfg.RosterPath)
		if err != nil {
			return err
		}
		jww.INFO.Printf("Loaded %d users from %s", roster.Count(),
			cfg.RosterPath)
		dir = roster
	case "firestore":
		client, err := b.firestore(ctx, cfg)
		if err != nil {
			return err
		}
		dir = directory.NewFirestore(client)
	default:
		return errors.Errorf("unknown directory backend %q",
			cfg.DirectoryBackend)
	}

	if cfg.CacheTTL <= 0 {
		b.dir = dir
		return nil
	}
	cached, err := directory.NewCached(dir, cfg.CacheTTL)
	if err != nil {
		return err
	}
	b.dir = cached
	b.closers = append(b.closers, func() error { cached.Close(); return nil })
	return nil
}

func initPush(ctx context.Context, cfg config) (push.Dispatcher, error) {
	switch cfg.PushProvider {
	case "", "none":
		return push.Nop{}, nil
	case "expo":
		var opts []push.ExpoOption
		if cfg.ExpoToken != "" {
			opts = append(opts, push.WithExpoAccessToken(cfg.ExpoToken))
		}
		return push.NewExpo(opts...), nil
	case "fcm":
		if cfg.FcmProject == "" {
			return nil, errors.Errorf("%s is required for FCM",
				pushFcmProjectFlag)
		}
		var opts []option.ClientOption
		if cfg.FcmCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FcmCredentials))
		}
		return push.NewFCM(ctx, cfg.FcmProject, cfg.PushRate, opts...)
	default:
		return nil, errors.Errorf("unknown push provider %q", cfg.PushProvider)
	}
}

// initLedger opens the device store. Without a path the ledger lives in
// memory and is lost on restart.
func initLedger(cfg config) (*versioned.KV, error) {
	if cfg.LedgerPath == "" {
		return versioned.NewKV(ekv.MakeMemstore()), nil
	}
	store, err := ekv.NewFilestore(cfg.LedgerPath, cfg.LedgerPassword)
	if err != nil {
		return nil, errors.Errorf("failed to open device store at %s: %+v",
			cfg.LedgerPath, err)
	}
	return versioned.NewKV(store), nil
}

func (b *backends) initAlerts(ctx context.Context, cfg config) error {
	switch cfg.AlertsBackend {
	case "", "none":
		b.alerts = badge.NewStatic(0)
	case "firestore":
		client, err := b.firestore(ctx, cfg)
		if err != nil {
			return err
		}
		b.alerts = badge.NewFirestoreAlerts(client)
	case "poll":
		client, err := b.firestore(ctx, cfg)
		if err != nil {
			return err
		}
		interval := cfg.PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		b.alerts = badge.NewPoller(badge.CountUnresolved(client), interval)
	default:
		return errors.Errorf("unknown alerts backend %q", cfg.AlertsBackend)
	}
	return nil
}
