////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package api serves the messaging client to the staff app over HTTP and
// websockets.
package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/badge"
	"gitlab.com/elixxir/staffcomms/dm"
)

// Server exposes a dm.Client. Every route except /health requires a bearer
// token.
type Server struct {
	app      *fiber.App
	client   dm.Client
	alerts   badge.AlertSource
	secret   []byte
	sanitize *bluemonday.Policy
}

// NewServer builds the routes for client. alerts feeds the badge stream and
// may be nil.
func NewServer(client dm.Client, alerts badge.AlertSource, secret []byte) *Server {
	s := &Server{
		client:   client,
		alerts:   alerts,
		secret:   secret,
		sanitize: bluemonday.StrictPolicy(),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := authenticate(secret)
	rest := s.app.Group("/api", auth)
	rest.Post("/messages", s.sendMessage)
	rest.Post("/conversations/:peer/read", s.markRead)
	rest.Delete("/conversations/:id", s.deleteConversation)
	rest.Delete("/messages/:id", s.deleteMessage)

	ws := s.app.Group("/ws", auth, requireUpgrade)
	ws.Get("/messages/:peer", websocket.New(s.streamMessages))
	ws.Get("/conversations", websocket.New(s.streamConversations))
	ws.Get("/badge", websocket.New(s.streamBadge))
	ws.Get("/notifications", websocket.New(s.streamNotifications))

	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	jww.INFO.Printf("[API] Listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and closes open sockets.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// errorStatus maps client errors to HTTP status codes.
func errorStatus(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, dm.ErrSelfMessage), errors.Is(err, dm.ErrEmptyContent):
		return fiber.StatusBadRequest
	case errors.Is(err, dm.ErrNotParticipant):
		return fiber.StatusForbidden
	case dm.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, dm.ErrClientClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := errorStatus(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		jww.ERROR.Printf("[API] %s %s failed: %+v", c.Method(), c.Path(), err)
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
