package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/app/results"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const sessionLanguageKey = "language"

// Controller is what the view API drives; *orch.Orchestrator implements it.
type Controller interface {
	View() orch.View
	CallPhase() domain.Phase
	StartCall(ctx context.Context, userHint string) (domain.Session, error)
	EndCall()
	SetLanguage(ctx context.Context, tag string) (domain.Language, error)
	ToggleLanguage(ctx context.Context) (domain.Language, error)
	SaveContactDraft(email, phone string)
	SubmitContact(email, phone string) bool
	CancelContact()
	DismissContact()
	SelectProperty(index int) (domain.Property, error)
	CloseDetail()
	SelectMedia(kind domain.MediaKind, index int) (results.MediaCursor, error)
	NextMedia() (results.MediaCursor, bool)
	PrevMedia() (results.MediaCursor, bool)
	CloseMedia()
}

type LanguageRequest struct {
	Language string `json:"language" binding:"required"`
}

type ContactRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type MediaRequest struct {
	Kind  domain.MediaKind `json:"kind" binding:"required"`
	Index int              `json:"index"`
}

type Handlers struct {
	Ctrl       Controller
	UserPrefix string
}

func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/state", h.state)

	r.POST("/call/start", h.startCall)
	r.POST("/call/end", h.endCall)
	r.POST("/language", h.setLanguage)
	r.POST("/language/toggle", h.toggleLanguage)

	r.POST("/contact/draft", h.contactDraft)
	r.POST("/contact/submit", h.contactSubmit)
	r.POST("/contact/cancel", h.contactCancel)
	r.POST("/contact/dismiss", h.contactDismiss)

	r.POST("/properties/:index/select", h.selectProperty)
	r.POST("/detail/close", h.closeDetail)

	r.POST("/media/select", h.selectMedia)
	r.POST("/media/next", h.nextMedia)
	r.POST("/media/prev", h.prevMedia)
	r.POST("/media/close", h.closeMedia)
}

func (h *Handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.Ctrl.View())
}

// startCall applies the browser's stored language only to a call that is not
// already running, so a rejected start leaves the live session untouched.
func (h *Handlers) startCall(c *gin.Context) {
	tag, _ := sessions.Default(c).Get(sessionLanguageKey).(string)
	if tag != "" && h.Ctrl.CallPhase() == domain.PhaseDisconnected {
		if _, err := h.Ctrl.SetLanguage(c.Request.Context(), tag); err != nil {
			log.Warn().Err(err).Str("module", "transport.http").Str("language", tag).Msg("stored language ignored")
		}
	}
	sess, err := h.Ctrl.StartCall(c.Request.Context(), UserHint(h.UserPrefix, c.GetString("client_token")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handlers) endCall(c *gin.Context) {
	h.Ctrl.EndCall()
	c.JSON(http.StatusOK, h.Ctrl.View())
}

func (h *Handlers) setLanguage(c *gin.Context) {
	var req LanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid language"})
		return
	}
	lang, err := h.Ctrl.SetLanguage(c.Request.Context(), req.Language)
	if err != nil {
		writeError(c, err)
		return
	}
	h.rememberLanguage(c, lang)
}

func (h *Handlers) toggleLanguage(c *gin.Context) {
	lang, err := h.Ctrl.ToggleLanguage(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.rememberLanguage(c, lang)
}

func (h *Handlers) rememberLanguage(c *gin.Context, lang domain.Language) {
	s := sessions.Default(c)
	s.Set(sessionLanguageKey, string(lang))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Msg("save session")
	}
	c.JSON(http.StatusOK, gin.H{"language": lang, "label": lang.Label()})
}

func (h *Handlers) contactDraft(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact draft"})
		return
	}
	h.Ctrl.SaveContactDraft(req.Email, req.Phone)
	c.JSON(http.StatusOK, h.Ctrl.View().Contact)
}

func (h *Handlers) contactSubmit(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact submission"})
		return
	}
	if !h.Ctrl.SubmitContact(req.Email, req.Phone) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "email and phone are required"})
		return
	}
	c.JSON(http.StatusOK, h.Ctrl.View().Contact)
}

func (h *Handlers) contactCancel(c *gin.Context) {
	h.Ctrl.CancelContact()
	c.JSON(http.StatusOK, h.Ctrl.View().Contact)
}

func (h *Handlers) contactDismiss(c *gin.Context) {
	h.Ctrl.DismissContact()
	c.JSON(http.StatusOK, h.Ctrl.View().Contact)
}

func (h *Handlers) selectProperty(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	p, err := h.Ctrl.SelectProperty(i)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) closeDetail(c *gin.Context) {
	h.Ctrl.CloseDetail()
	c.Status(http.StatusNoContent)
}

func (h *Handlers) selectMedia(c *gin.Context) {
	var req MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media request"})
		return
	}
	cur, err := h.Ctrl.SelectMedia(req.Kind, req.Index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (h *Handlers) nextMedia(c *gin.Context) { h.stepMedia(c, h.Ctrl.NextMedia) }
func (h *Handlers) prevMedia(c *gin.Context) { h.stepMedia(c, h.Ctrl.PrevMedia) }

func (h *Handlers) stepMedia(c *gin.Context, step func() (results.MediaCursor, bool)) {
	cur, ok := step()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no media open"})
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (h *Handlers) closeMedia(c *gin.Context) {
	h.Ctrl.CloseMedia()
	c.Status(http.StatusNoContent)
}

// UserHint derives a stable participant hint from the browser's client token.
func UserHint(prefix, clientToken string) string {
	if clientToken == "" {
		return domain.NewUserHint(prefix)
	}
	if prefix == "" {
		prefix = domain.DefaultUserPrefix
	}
	hint := prefix + clientToken
	if len(hint) > domain.MaxHintLen {
		hint = hint[:domain.MaxHintLen]
	}
	return hint
}

func writeError(c *gin.Context, err error) {
	var (
		tfe *domain.TokenFetchError
		ce  *domain.ConnectError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedLanguage), errors.Is(err, results.ErrUnknownMedia):
		status = http.StatusBadRequest
	case errors.Is(err, results.ErrIndexOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, results.ErrNoSelection):
		status = http.StatusConflict
	case errors.As(err, &tfe), errors.As(err, &ce):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
