////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"html"
	"strings"

	"github.com/gofiber/fiber/v2"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/dm"
)

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	RecipientID    string `json:"recipientId"`
	RecipientName  string `json:"recipientName"`
	RecipientEmail string `json:"recipientEmail"`
	Content        string `json:"content"`
}

// SendResponse is returned by POST /api/messages.
type SendResponse struct {
	ID string `json:"id"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if strings.TrimSpace(req.RecipientID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "recipientId is required")
	}

	sender := asViewer(c.Locals(viewerKey))
	recipient := dm.Participant{
		ID:    req.RecipientID,
		Name:  req.RecipientName,
		Email: req.RecipientEmail,
	}
	id, err := s.client.SendMessage(c.UserContext(), sender, recipient,
		s.clean(req.Content))
	if err != nil {
		return err
	}
	jww.DEBUG.Printf("[API] %s sent %s to %s", sender.ID, id, recipient.ID)
	return c.Status(fiber.StatusCreated).JSON(SendResponse{ID: id})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	v := asViewer(c.Locals(viewerKey))
	if err := s.client.MarkMessagesAsRead(
		c.UserContext(), c.Params("peer"), v.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteConversation(c *fiber.Ctx) error {
	v := asViewer(c.Locals(viewerKey))
	if err := s.client.DeleteConversation(
		c.UserContext(), c.Params("id"), v.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	v := asViewer(c.Locals(viewerKey))
	if err := s.client.DeleteMessage(
		c.UserContext(), c.Params("id"), v.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// clean strips markup from message content. Entities are unescaped again
// since the app renders content as plain text.
func (s *Server) clean(content string) string {
	return html.UnescapeString(s.sanitize.Sanitize(content))
}
