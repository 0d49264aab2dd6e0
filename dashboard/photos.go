package dashboard

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/utils"
)

// ArchiveJobPhotosHandler copies a job's photo and form attachments into
// Cloud Storage under jobs/<jobId>/. Objects already present are skipped, so
// re-archiving a job is cheap.
func (h *Handlers) ArchiveJobPhotosHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !config.PhotoArchiveEnabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo archive disabled"})
			return
		}

		jobId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}

		attachments, err := h.client.JobAttachments(c.Request.Context(), jobId)
		if err != nil {
			h.logger.Errorf("attachment list failed for job %d: %v", jobId, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
			return
		}

		archived, skipped := 0, 0
		var errs []string
		for _, att := range attachments {
			objectName := "jobs/" + strconv.Itoa(jobId) + "/" + att.FileName

			exists, err := utils.ObjectExistsInGCS(c.Request.Context(), objectName)
			if err != nil {
				errs = append(errs, "stat "+att.FileName+": "+err.Error())
				continue
			}
			if exists {
				skipped++
				continue
			}

			data, err := h.client.DownloadAttachment(c.Request.Context(), att)
			if err != nil {
				errs = append(errs, "download "+att.FileName+": "+err.Error())
				continue
			}

			contentType := mime.TypeByExtension(filepath.Ext(att.FileName))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if err := utils.UploadBytesToGCS(c.Request.Context(), objectName, data, contentType); err != nil {
				errs = append(errs, "upload "+att.FileName+": "+err.Error())
				continue
			}
			archived++
		}

		c.JSON(http.StatusOK, gin.H{
			"success":  len(errs) == 0,
			"archived": archived,
			"skipped":  skipped,
			"errors":   errs,
		})
	}
}
