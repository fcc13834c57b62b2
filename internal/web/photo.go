package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/cellar/internal/cellar"
	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/storage"
)

var errTooLarge = errors.New("the photo is too large")

// clarifyForm carries the first upload through the style question so the
// label can be read again without a second upload.
type clarifyForm struct {
	Questions   []string
	ImageBase64 string
	MediaType   string
	ImagePath   string
	ImageRef    string
}

// readUpload pulls the "image" file out of a multipart form.
func (p *Pages) readUpload(c *gin.Context) (cellar.Image, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, p.maxUpload)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return cellar.Image{}, errTooLarge
		}
		return cellar.Image{}, fmt.Errorf("%w: choose a label photo to upload", models.ErrValidation)
	}
	f, err := fh.Open()
	if err != nil {
		return cellar.Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cellar.Image{}, fmt.Errorf("read upload: %w", err)
	}
	img, err := cellar.NewImage(fh.Filename, data)
	if err != nil {
		return cellar.Image{}, fmt.Errorf("%w: use a png, jpg, gif or webp photo", models.ErrValidation)
	}
	return img, nil
}

// uploadFailed re-renders an upload page with the reason the photo was
// refused.
func (p *Pages) uploadFailed(c *gin.Context, name string, data gin.H, err error) {
	switch {
	case errors.Is(err, errTooLarge):
		data["Error"] = "The photo is too large."
		c.HTML(http.StatusRequestEntityTooLarge, name, data)
	case errors.Is(err, models.ErrValidation):
		data["Error"] = strings.TrimPrefix(err.Error(), models.ErrValidation.Error()+": ")
		c.HTML(http.StatusBadRequest, name, data)
	default:
		p.fail(c, err)
	}
}

func scanPage() gin.H {
	return gin.H{"Title": "Scan a label", "Styles": models.KnownStyles}
}

func (p *Pages) ScanForm(c *gin.Context) {
	data := scanPage()
	data["Upload"] = true
	c.HTML(http.StatusOK, "scan", data)
}

func (p *Pages) Scan(c *gin.Context) {
	img, err := p.readUpload(c)
	if err != nil {
		data := scanPage()
		data["Upload"] = true
		p.uploadFailed(c, "scan", data, err)
		return
	}
	cand, err := p.svc.Analyze(c.Request.Context(), img)
	if err != nil {
		p.fail(c, err)
		return
	}
	p.showCandidate(c, cand, img)
}

// Clarify reads the label again with the style the owner picked.
func (p *Pages) Clarify(c *gin.Context) {
	form := clarifyForm{
		Questions:   c.PostFormArray("question"),
		ImageBase64: c.PostForm("image_base64"),
		MediaType:   c.PostForm("media_type"),
		ImagePath:   c.PostForm("image_path"),
		ImageRef:    c.PostForm("image_ref"),
	}

	data, err := base64.StdEncoding.DecodeString(form.ImageBase64)
	if err != nil || len(data) == 0 || !allowedMediaType(form.MediaType) {
		p.fail(c, fmt.Errorf("%w: the photo did not come through, upload it again", models.ErrValidation))
		return
	}
	img := cellar.Image{Data: data, MediaType: form.MediaType}

	cand, err := p.svc.AnalyzeClarified(c.Request.Context(), cellar.Clarification{
		Image:     img,
		Style:     c.PostForm("style"),
		ImagePath: form.ImagePath,
		ImageRef:  form.ImageRef,
	})
	if errors.Is(err, models.ErrValidation) {
		page := scanPage()
		page["Clarify"] = form
		page["Error"] = "Pick a style to continue."
		c.HTML(http.StatusBadRequest, "scan", page)
		return
	}
	if err != nil {
		p.fail(c, err)
		return
	}
	p.showCandidate(c, cand, img)
}

func allowedMediaType(mt string) bool {
	for _, known := range storage.AllowedImageExts {
		if known == mt {
			return true
		}
	}
	return false
}

// showCandidate renders whatever the reading calls for next: manual entry
// after a failure, the style question, or the prefilled form with the merge
// choice when the wine is already in the cellar.
func (p *Pages) showCandidate(c *gin.Context, cand *models.Candidate, img cellar.Image) {
	data := scanPage()
	switch {
	case cand.Failed():
		f := models.NewWineFields()
		f.ImagePath = cand.ImagePath
		f.ImageRef = cand.ImageRef
		data["Error"] = "Could not read the label: " + cand.Error
		data["Form"] = newWineForm("/wines/new", f)
	case cand.AwaitsClarification():
		data["Title"] = "One more thing"
		data["Clarify"] = clarifyForm{
			Questions:   cand.ClarificationQuestions,
			ImageBase64: base64.StdEncoding.EncodeToString(img.Data),
			MediaType:   img.MediaType,
			ImagePath:   cand.ImagePath,
			ImageRef:    cand.ImageRef,
		}
	default:
		data["Title"] = "Check the details"
		if cand.IsDuplicate && cand.ExistingWine != nil {
			data["Existing"] = cand.ExistingWine
			data["MergeQuantity"] = max(cand.Quantity, 1)
		}
		data["Form"] = newWineForm("/wines/new", cand.WineFields)
	}
	c.HTML(http.StatusOK, "scan", data)
}

// Merge adds the scanned bottles to a wine already in the cellar.
func (p *Pages) Merge(c *gin.Context) {
	id, err := pageID(c)
	if err != nil {
		p.fail(c, err)
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.PostForm("quantity")))
	if err != nil || n < 1 {
		p.fail(c, fmt.Errorf("%w: add at least one bottle", models.ErrValidation))
		return
	}
	if _, err := p.svc.AdjustQuantity(c.Request.Context(), id, n); err != nil {
		p.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/wines/%d", id))
}

func (p *Pages) DrinkForm(c *gin.Context) {
	c.HTML(http.StatusOK, "drink", gin.H{"Title": "Drink a bottle"})
}

// Drink takes one bottle of the photographed wine out of the cellar.
func (p *Pages) Drink(c *gin.Context) {
	data := gin.H{"Title": "Drink a bottle"}
	img, err := p.readUpload(c)
	if err != nil {
		p.uploadFailed(c, "drink", data, err)
		return
	}

	out, err := p.svc.Drink(c.Request.Context(), img)
	switch {
	case errors.Is(err, cellar.ErrUnidentified):
		data["Error"] = out.Identified.Error
		c.HTML(http.StatusBadRequest, "drink", data)
	case errors.Is(err, cellar.ErrNotInCollection):
		data["Error"] = "That wine is not in your collection."
		data["Identified"] = out.Identified
		c.HTML(http.StatusNotFound, "drink", data)
	case errors.Is(err, cellar.ErrNoneLeft):
		data["Error"] = "No bottles left of this wine."
		data["Wine"] = out.Wine
		c.HTML(http.StatusBadRequest, "drink", data)
	case err != nil:
		p.fail(c, err)
	default:
		data["Message"] = fmt.Sprintf("Enjoyed a bottle of %s!", out.Wine.Name)
		data["Wine"] = out.Wine
		c.HTML(http.StatusOK, "drink", data)
	}
}
