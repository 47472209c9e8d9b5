package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/apiresponses"
	"github.com/devmail/webapp/pkg/mail"
	"github.com/devmail/webapp/pkg/system"
)

const statusAccepted = "accepted"

// MailLogController exposes the in-memory mail log during development.
// mailLog is nil when mail is delivered over SMTP; the read endpoints then
// answer 404 while POST still goes through the configured sender.
type MailLogController struct {
	log     *zap.SugaredLogger
	mailLog *mail.Log
	sender  mail.EmailSender
}

func NewMailLogController(log *zap.SugaredLogger, sender mail.EmailSender) *MailLogController {
	mailLog, _ := sender.(*mail.Log)
	return &MailLogController{
		log:     log.Named("mail-log-api"),
		mailLog: mailLog,
		sender:  sender,
	}
}

func (MailLogController) BasePath() string {
	return "dev/emails"
}

func (mc *MailLogController) Register(rg *gin.RouterGroup) error {
	rg.GET("", mc.handleList)
	rg.GET("/:hour", mc.handleBucket)
	rg.POST("", mc.handleSend)
	return nil
}

func (MailLogController) Handlers() []gin.HandlerFunc {
	return nil
}

func (mc *MailLogController) handleList(c *gin.Context) {
	if mc.mailLog == nil {
		apiresponses.RespondNotFound(c, "mail log is only kept in mock mail mode")
		return
	}
	snapshot := mc.mailLog.Snapshot()
	resp := MailLogResponse{Buckets: make([]HourBucket, 0, len(snapshot))}
	for _, hour := range mc.mailLog.Hours() {
		records, ok := snapshot[hour]
		if !ok {
			continue
		}
		resp.Buckets = append(resp.Buckets, HourBucket{Hour: hour, Records: records})
		resp.Total += len(records)
	}
	apiresponses.RespondOK(c, resp)
}

func (mc *MailLogController) handleBucket(c *gin.Context) {
	hour, err := strconv.Atoi(c.Param("hour"))
	if err != nil || hour < 0 || hour >= mail.HoursPerDay {
		apiresponses.RespondBadRequest(c, "hour must be an integer between 0 and 23")
		return
	}
	if mc.mailLog == nil {
		apiresponses.RespondNotFound(c, "mail log is only kept in mock mail mode")
		return
	}
	records := mc.mailLog.Bucket(hour)
	if records == nil {
		records = []mail.Record{}
	}
	apiresponses.RespondOK(c, HourBucket{Hour: hour, Records: records})
}

func (mc *MailLogController) handleSend(c *gin.Context) {
	reqLog := system.GetReqLogger(c, mc.log)

	var req SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid email request", err.Error())
		return
	}
	if err := mc.sender.SendEmail(c.Request.Context(), req.To, req.Subject, req.Body); err != nil {
		apiresponses.RespondInternalError(c, "send email", err, reqLog)
		return
	}
	reqLog.Infow("Test email submitted", "to", req.To, "subject", req.Subject)
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: statusAccepted})
}
