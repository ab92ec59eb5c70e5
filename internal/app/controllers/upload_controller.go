package controllers

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/services"
	"github.com/yigit/educhat/internal/middleware"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

// UploadController stores attachments ahead of the message that references them
type UploadController struct {
	attachments services.AttachmentService
}

// NewUploadController creates a new UploadController
func NewUploadController(attachments services.AttachmentService) *UploadController {
	return &UploadController{attachments: attachments}
}

// Upload godoc
// @Summary Upload an attachment
// @Description Stores a binary under "<millis>_<original name>". No message is created; pass the returned file reference when sending one.
// @Tags uploads
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Attachment"
// @Success 201 {object} dto.APIResponse{data=dto.UploadResponse}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail} "File part missing"
// @Failure 500 {object} dto.APIResponse{error=dto.ErrorDetail} "Storage failure"
// @Router /upload [post]
func (c *UploadController) Upload(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		middleware.HandleAPIError(ctx, apperrors.NewValidationError("file", "file is required"))
		return
	}

	src, err := file.Open()
	if err != nil {
		middleware.HandleAPIError(ctx, apperrors.NewStorageError(err))
		return
	}
	defer src.Close()

	ref, err := c.attachments.Upload(ctx.Request.Context(), src, file.Filename, file.Header.Get("Content-Type"))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	url, err := c.attachments.URL(ctx.Request.Context(), ref.StoredName)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.UploadResponse{
		Filename:     ref.StoredName,
		OriginalName: ref.OriginalName,
		Size:         ref.Size,
		HumanSize:    humanize.Bytes(uint64(ref.Size)),
		MimeType:     ref.MimeType,
		URL:          url,
	}, "File uploaded"))
}

// RepairAttachments godoc
// @Summary Repair missing attachments
// @Description Writes a text placeholder for every referenced attachment whose binary is missing
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=services.RepairReport}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail} "Forbidden: admin only"
// @Router /admin/uploads/repair [post]
func (c *UploadController) RepairAttachments(ctx *gin.Context) {
	report, err := c.attachments.RepairMissing(ctx.Request.Context())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(report, ""))
}
