package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/patch"
	"github.com/oremus-labs/genui-bridge/internal/render"
	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/validator"
)

type renderResponse struct {
	Session    *store.Session          `json:"session"`
	Text       string                  `json:"text"`
	Tree       jsonval.Value           `json:"tree"`
	Failures   []sessions.PatchFailure `json:"failures,omitempty"`
	Validation *validator.Result       `json:"validation,omitempty"`
	Outline    string                  `json:"outline,omitempty"`
}

// Render consumes the request body as an event stream and returns the
// final tree. With Accept: text/event-stream the tokens and snapshots are
// relayed as they arrive and the result is sent as the last event.
func (h *Handler) Render(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	opts := sessions.RunOptions{
		Source:       sessions.SourceUpload,
		TokenPatches: queryBool(c, "tokenPatches"),
	}

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.renderStream(c, body, opts)
		return
	}

	res, err := h.sessions.Run(c.Request.Context(), body, opts)
	if err != nil && res == nil {
		log.Printf("Failed to render upload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp := h.renderResult(res, queryBool(c, "outline"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": resp})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) renderResult(res *sessions.Result, outline bool) renderResponse {
	resp := renderResponse{
		Session:    res.Session,
		Tree:       res.Tree,
		Failures:   res.Failures,
		Validation: h.validate(res.Tree),
	}
	if res.Session != nil {
		resp.Text = res.Session.Text
	}
	if outline {
		resp.Outline = render.Outline(res.Tree, h.registry)
	}
	return resp
}

type relayEvent struct {
	name string
	data interface{}
}

func (h *Handler) renderStream(c *gin.Context, body io.ReadCloser, opts sessions.RunOptions) {
	ctx := c.Request.Context()
	relay := make(chan relayEvent, 64)
	send := func(evt relayEvent) {
		select {
		case relay <- evt:
		case <-ctx.Done():
		}
	}
	opts.OnToken = func(text string) {
		send(relayEvent{name: "token", data: gin.H{"text": text}})
	}
	opts.OnTree = func(tree jsonval.Value, op patch.Op) {
		send(relayEvent{name: "tree", data: gin.H{"op": op, "tree": tree}})
	}

	// HTTP/1 closes the request body once the response is flushed, so the
	// upload is read in full duplex or buffered before streaming begins.
	if err := http.NewResponseController(c.Writer).EnableFullDuplex(); err != nil {
		data, readErr := io.ReadAll(body)
		_ = body.Close()
		if readErr != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(readErr, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			c.JSON(status, gin.H{"error": readErr.Error()})
			return
		}
		body = io.NopCloser(bytes.NewReader(data))
	}

	outline := queryBool(c, "outline")
	done := make(chan relayEvent, 1)
	go func() {
		defer close(relay)
		res, err := h.sessions.Run(ctx, body, opts)
		if res == nil {
			done <- relayEvent{name: "error", data: gin.H{"error": err.Error()}}
			return
		}
		payload := gin.H{"result": h.renderResult(res, outline)}
		if err != nil {
			payload["error"] = err.Error()
		}
		done <- relayEvent{name: "result", data: payload}
	}()

	streamHeaders(c)
	c.Stream(func(w io.Writer) bool {
		evt, ok := <-relay
		if !ok {
			final := <-done
			c.SSEvent(final.name, final.data)
			return false
		}
		c.SSEvent(evt.name, evt.data)
		return true
	})
}
