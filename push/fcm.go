////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package push

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"
)

const (
	// DefaultFCMRate is the default number of sends per second.
	DefaultFCMRate = 50

	// fcmWorkers bounds the number of concurrent send calls.
	fcmWorkers = 8
)

// fcmSendFunc delivers a single message.
type fcmSendFunc func(ctx context.Context, msg *fcm.Message) error

// FCM sends notifications through Firebase Cloud Messaging. FCM v1 has no
// multicast call, so every token is sent on its own, paced by a rate limiter
// and fanned out over a bounded worker group.
type FCM struct {
	send    fcmSendFunc
	limiter ratelimit.Limiter
}

// NewFCM creates a dispatcher for the given Firebase project. rate is the
// number of sends per second; non-positive selects DefaultFCMRate.
func NewFCM(ctx context.Context, project string, rate int,
	opts ...option.ClientOption) (*FCM, error) {
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Errorf("failed to create FCM service: %+v", err)
	}
	parent := "projects/" + project

	return newFCM(func(ctx context.Context, msg *fcm.Message) error {
		_, err := svc.Projects.Messages.Send(parent,
			&fcm.SendMessageRequest{Message: msg}).Context(ctx).Do()
		return err
	}, rate), nil
}

func newFCM(send fcmSendFunc, rate int) *FCM {
	if rate <= 0 {
		rate = DefaultFCMRate
	}
	return &FCM{
		send:    send,
		limiter: ratelimit.New(rate, ratelimit.WithoutSlack),
	}
}

// Send delivers the notification to every token. Per-token failures are
// collected into a *TicketError and never stop the remaining sends.
func (f *FCM) Send(ctx context.Context, tokens []string, title, body string,
	data map[string]string) error {
	var (
		mux    sync.Mutex
		failed = make(map[string]string)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fcmWorkers)
	for _, batch := range Batches(tokens, MaxBatch) {
		for _, token := range batch {
			token := token
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				f.limiter.Take()
				err := f.send(gctx, &fcm.Message{
					Token: token,
					Notification: &fcm.Notification{
						Title: title,
						Body:  body,
					},
					Data: data,
				})
				if err != nil {
					jww.WARN.Printf("[PUSH] FCM send failed: %+v", err)
					mux.Lock()
					failed[token] = err.Error()
					mux.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return errors.WithMessage(err, "push cancelled")
	}

	if len(failed) > 0 {
		return &TicketError{Failed: failed}
	}
	return nil
}
