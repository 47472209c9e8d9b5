package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/account"
	"github.com/devmail/webapp/pkg/apiresponses"
	"github.com/devmail/webapp/pkg/system"
)

// AccountMailController triggers the account workflow emails by hand so the
// rendered messages can be inspected in the mail log.
type AccountMailController struct {
	log      *zap.SugaredLogger
	notifier *account.Notifier
}

func NewAccountMailController(log *zap.SugaredLogger, notifier *account.Notifier) *AccountMailController {
	return &AccountMailController{log: log.Named("account-mail-api"), notifier: notifier}
}

func (AccountMailController) BasePath() string {
	return "dev/account"
}

func (ac *AccountMailController) Register(rg *gin.RouterGroup) error {
	rg.POST("/confirmation", ac.handleConfirmation)
	rg.POST("/password-reset", ac.handlePasswordReset)
	rg.POST("/two-factor", ac.handleTwoFactor)
	return nil
}

func (AccountMailController) Handlers() []gin.HandlerFunc {
	return nil
}

func (ac *AccountMailController) handleConfirmation(c *gin.Context) {
	var req ConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid confirmation request", err.Error())
		return
	}
	if !ac.notifier.ConfirmationRequired() {
		c.JSON(http.StatusOK, ConfirmationResponse{Sent: false, Required: false})
		return
	}
	err := ac.notifier.SendConfirmationLink(c.Request.Context(), req.To, req.UserID, req.Code)
	if ac.respondError(c, "send confirmation email", err) {
		return
	}
	c.JSON(http.StatusAccepted, ConfirmationResponse{Sent: true, Required: true})
}

func (ac *AccountMailController) handlePasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid password reset request", err.Error())
		return
	}
	err := ac.notifier.SendPasswordResetLink(c.Request.Context(), req.To, req.Code)
	if ac.respondError(c, "send password reset email", err) {
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: statusAccepted})
}

func (ac *AccountMailController) handleTwoFactor(c *gin.Context) {
	var req TwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid two-factor request", err.Error())
		return
	}
	err := ac.notifier.SendTwoFactorCode(c.Request.Context(), req.To, req.Code)
	if ac.respondError(c, "send two-factor email", err) {
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: statusAccepted})
}

// respondError writes the error response and reports whether it did.
func (ac *AccountMailController) respondError(c *gin.Context, op string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, account.ErrInvalidRecipient):
		apiresponses.RespondBadRequest(c, err.Error())
	default:
		apiresponses.RespondInternalError(c, op, err, system.GetReqLogger(c, ac.log))
	}
	return true
}
