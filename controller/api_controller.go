package controller

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/model"
	"github.com/codacy-acme/gl-repo-reporter/report"
	"github.com/codacy-acme/gl-repo-reporter/service"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type APIController interface {
	GetReport(ctx *gin.Context)
	GetIssuesReport(ctx *gin.Context)
}

type apiController struct {
	reportService service.ReportService
	config        config.Config
}

func NewAPIController(config config.Config, service service.ReportService) APIController {
	return apiController{
		reportService: service,
		config:        config,
	}
}

// RegisterRoutes
func RegisterRoutes(router *gin.Engine, apiController APIController) {
	api := router.Group("")
	{
		api.GET("/reports", apiController.GetReport)
		api.GET("/reports/issues", apiController.GetIssuesReport)
	}
}

func (s apiController) GetReport(c *gin.Context) {
	query, ok := s.bindQuery(c)
	if !ok {
		return
	}

	// execute the report, bound to the client request
	result, err := s.reportService.BuildReport(c.Request.Context(), query)
	if err != nil {
		abortWithError(c, query, err)
		return
	}

	if query.Format == "csv" {
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, result.Rows, s.config.Report.IssueBreakdown); err != nil {
			abortWithError(c, query, err)
			return
		}

		sendCSV(c, report.Filename(s.config.Report.FilePrefix, result.GeneratedAt), buf.Bytes())
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s apiController) GetIssuesReport(c *gin.Context) {
	query, ok := s.bindQuery(c)
	if !ok {
		return
	}

	result, err := s.reportService.BuildIssuesReport(c.Request.Context(), query)
	if err != nil {
		abortWithError(c, query, err)
		return
	}

	if query.Format == "csv" {
		var buf bytes.Buffer
		if err := report.WriteIssuesCSV(&buf, result.Rows); err != nil {
			abortWithError(c, query, err)
			return
		}

		sendCSV(c, report.Filename(s.config.Report.IssuesFilePrefix, result.GeneratedAt), buf.Bytes())
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s apiController) bindQuery(c *gin.Context) (model.ReportQuery, bool) {
	var query model.ReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		apiErr := model.NewAPIError(fmt.Errorf("%w: %s", model.ErrInvalidQuery, err))
		c.JSON(apiErr.Status, apiErr)
		return query, false
	}

	query, err := query.Normalize(s.config.Codacy.Provider)
	if err != nil {
		apiErr := model.NewAPIError(err)
		c.JSON(apiErr.Status, apiErr)
		return query, false
	}

	return query, true
}

func abortWithError(c *gin.Context, query model.ReportQuery, err error) {
	log.WithError(err).WithField("organization", query.Organization).Error("unable to build report")

	apiErr := model.NewAPIError(err)
	c.JSON(apiErr.Status, apiErr)
}

func sendCSV(c *gin.Context, filename string, content []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", content)
}
