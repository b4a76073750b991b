package docsystem

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"jokernotes/internal/config"
	"jokernotes/internal/domain"
	"jokernotes/internal/domain/services"
)

// allowedCoverTypes lists the image types accepted as cover uploads
var allowedCoverTypes = []interface{}{"image/png", "image/jpeg", "image/gif", "image/webp"}

// validateCreateRequest validates a document creation request
func validateCreateRequest(req *services.CreateDocumentRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.RuneLength(0, config.MaxTitleLength)),
		validation.Field(&req.ParentID, validation.NilOrNotEmpty, is.UUID),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// validateUpdateRequest validates the values of the fields present in req.
// OptionalText wraps each value, so fields are checked one by one.
func validateUpdateRequest(req *services.UpdateDocumentRequest) error {
	errs := validation.Errors{
		"title":   validation.Validate(req.Title.Value, validation.RuneLength(0, config.MaxTitleLength)),
		"content": validation.Validate(req.Content.Value, validation.Length(0, config.MaxContentLength)),
		"cover_image_ref": validation.Validate(req.CoverImageRef.Value,
			validation.Length(0, config.MaxCoverImageRefLength),
			is.URL,
		),
		"icon_glyph": validation.Validate(req.IconGlyph.Value, validation.RuneLength(0, config.MaxIconLength)),
	}
	if err := errs.Filter(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// validateParentFilter checks the parent of a children listing
func validateParentFilter(parentID *string) error {
	if parentID == nil {
		return nil
	}
	if err := validation.Validate(*parentID, is.UUID); err != nil {
		return fmt.Errorf("%w: parent_id: %v", domain.ErrValidation, err)
	}
	return nil
}

// validateCoverUpload checks an uploaded image before it is stored
func validateCoverUpload(upload *services.CoverUpload) error {
	if upload == nil || upload.Body == nil {
		return fmt.Errorf("%w: file is required", domain.ErrValidation)
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(upload.ContentType, ";")[0]))
	err := validation.Errors{
		"content_type": validation.Validate(contentType, validation.Required, validation.In(allowedCoverTypes...)),
		"size":         validation.Validate(upload.Size, validation.Required.Error("file is empty"), validation.Max(int64(config.MaxCoverImageBytes))),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// validateSearchQuery bounds the title filter
func validateSearchQuery(query string) error {
	if err := validation.Validate(query, validation.RuneLength(0, config.MaxSearchQueryLength)); err != nil {
		return fmt.Errorf("%w: q: %v", domain.ErrValidation, err)
	}
	return nil
}
