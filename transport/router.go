// Package transport exposes the hub over HTTP: a REST surface for
// account, history and upload calls, and a websocket gateway for the
// live event stream.
package transport

import (
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const identityKey = "identity"

// maxUploadBytes caps a single file upload.
const maxUploadBytes = 16 << 20

type API struct {
	log      *slog.Logger
	accounts *services.AccountService
	ops      *services.Operations
	verifier contract.Verifier
	blobs    contract.BlobStore
	gateway  *Gateway
	blobDir  string
}

func NewAPI(log *slog.Logger, accounts *services.AccountService, ops *services.Operations,
	verifier contract.Verifier, blobs contract.BlobStore, gateway *Gateway, blobDir string) *API {
	return &API{
		log:      log,
		accounts: accounts,
		ops:      ops,
		verifier: verifier,
		blobs:    blobs,
		gateway:  gateway,
		blobDir:  blobDir,
	}
}

// Router wires every endpoint. Gin release mode is the caller's call.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/auth/register", a.register)
	r.POST("/auth/login", a.login)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static("/files", a.blobDir)

	authed := r.Group("/", a.authenticate)
	authed.GET("/ws", a.gateway.Handle)
	authed.GET("/conversations", a.listConversations)
	authed.POST("/conversations", a.createConversation)
	authed.DELETE("/conversations/:id", a.deleteConversation)
	authed.GET("/conversations/:id/messages", a.listMessages)
	authed.POST("/conversations/:id/messages", a.sendMessage)
	authed.GET("/conversations/:id/search", a.searchMessages)
	authed.GET("/conversations/:id/members", a.listMembers)
	authed.POST("/conversations/:id/members", a.addMember)
	authed.PUT("/conversations/:id/members/:userID", a.changeRole)
	authed.DELETE("/conversations/:id/members/:userID", a.removeMember)
	authed.PUT("/conversations/:id/notifications", a.updateNotifications)
	authed.POST("/files", a.uploadFile)

	return r
}

// authenticate resolves the bearer token (or, for the websocket
// endpoint, the token query parameter) into a caller identity.
func (a *API) authenticate(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	identity, err := a.verifier.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code": errors.Code(errors.ErrAuthFailed), "message": errors.ErrAuthFailed.Error(),
		})
		return
	}
	c.Set(identityKey, identity)
	c.Next()
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func callerOf(c *gin.Context) contract.Identity {
	return c.MustGet(identityKey).(contract.Identity)
}

func (a *API) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	user, token, err := a.accounts.Register(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

func (a *API) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	user, token, err := a.accounts.Login(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (a *API) listConversations(c *gin.Context) {
	summaries, err := a.ops.ListConversations(c.Request.Context(), callerOf(c).UserID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

type createConversationRequest struct {
	Kind      domain.Kind `json:"kind"`
	Name      string      `json:"name"`
	PeerID    uuid.UUID   `json:"peer_id"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	AdminIDs  []uuid.UUID `json:"admin_ids"`
}

func (a *API) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	caller := callerOf(c)

	if req.Kind == domain.KindPrivate {
		conv, err := a.ops.CreatePrivate(c.Request.Context(), caller.UserID, req.PeerID)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation": conv})
		return
	}

	conv, err := a.ops.CreateGroup(c.Request.Context(), services.CreateGroupCommand{
		Name:      req.Name,
		Kind:      req.Kind,
		CreatorID: caller.UserID,
		MemberIDs: req.MemberIDs,
		AdminIDs:  req.AdminIDs,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (a *API) deleteConversation(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	if err := a.ops.DeleteConversation(c.Request.Context(), conversationID, callerOf(c).UserID); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listMessages(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	var cursor *string
	if raw := c.Query("cursor"); raw != "" {
		cursor = &raw
	}
	messages, next, err := a.ops.ListMessages(c.Request.Context(), conversationID, callerOf(c).UserID, cursor)
	if err != nil {
		a.writeError(c, err)
		return
	}
	resp := gin.H{"messages": messages}
	if next != nil {
		resp["next_cursor"] = *next
	}
	c.JSON(http.StatusOK, resp)
}

type sendMessageRequest struct {
	Content string                 `json:"content"`
	File    *domain.FileDescriptor `json:"file"`
}

// sendMessage is the REST twin of the socket send op. Both go through
// the same operations path, so delivery and moderation are identical.
func (a *API) sendMessage(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	msg, err := a.ops.Send(c.Request.Context(), services.SendCommand{
		ConversationID: conversationID,
		SenderID:       callerOf(c).UserID,
		Content:        req.Content,
		File:           req.File,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (a *API) searchMessages(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	messages, err := a.ops.SearchMessages(c.Request.Context(), conversationID, callerOf(c).UserID, c.Query("q"), limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (a *API) listMembers(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	members, err := a.ops.ListMembers(c.Request.Context(), conversationID, callerOf(c).UserID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type memberRequest struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role"`
}

func (a *API) addMember(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	if err := a.ops.AddMember(c.Request.Context(), conversationID, callerOf(c).UserID, req.UserID, req.Role); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (a *API) changeRole(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	targetID, ok := a.pathUUID(c, "userID")
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	if err := a.ops.ChangeRole(c.Request.Context(), conversationID, callerOf(c).UserID, targetID, req.Role); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) removeMember(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	targetID, ok := a.pathUUID(c, "userID")
	if !ok {
		return
	}
	if err := a.ops.RemoveMember(c.Request.Context(), conversationID, callerOf(c).UserID, targetID); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type notificationRequest struct {
	Sound   bool `json:"sound"`
	Desktop bool `json:"desktop"`
}

func (a *API) updateNotifications(c *gin.Context) {
	conversationID, ok := a.pathUUID(c, "id")
	if !ok {
		return
	}
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	setting := domain.NotificationSetting{
		UserID:         callerOf(c).UserID,
		ConversationID: conversationID,
		Sound:          req.Sound,
		Desktop:        req.Desktop,
	}
	if err := a.ops.UpdateNotificationSettings(c.Request.Context(), setting); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"setting": setting})
}

// uploadFile stores the blob and returns the descriptor to attach to a
// later send. The message itself still travels over the socket.
func (a *API) uploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		a.writeError(c, errors.ErrUploadFailed)
		return
	}
	if header.Size > maxUploadBytes {
		a.writeError(c, errors.ErrUploadFailed)
		return
	}
	f, err := header.Open()
	if err != nil {
		a.writeError(c, errors.ErrUploadFailed)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		a.writeError(c, errors.ErrUploadFailed)
		return
	}

	descriptor, err := a.blobs.Store(c.Request.Context(), header.Filename, data)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": descriptor})
}

func (a *API) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code": errors.Code(errors.ErrNotFound), "message": "invalid identifier",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_request", "message": err.Error()})
}

func (a *API) writeError(c *gin.Context, err error) {
	var verr validator.ValidationErrors
	if stderrors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_request", "message": err.Error()})
		return
	}
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"code": errors.Code(err), "message": err.Error()})
}
