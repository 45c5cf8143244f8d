package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/uk-weather-gateway/internal/common"
	"github.com/i474232898/uk-weather-gateway/internal/store"
	"github.com/i474232898/uk-weather-gateway/internal/weather"
)

// adminBody is accepted on POST and DELETE; only AdminKey is read on DELETE.
type adminBody struct {
	AdminKey string `json:"admin_key"`
	Name     string `json:"name" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Plan     string `json:"plan" validate:"omitempty,oneof=free pro"`
}

var errForbidden = &weather.Error{Kind: weather.KindForbidden, Message: "Invalid admin key"}

func registerAdminRoutes(app *fiber.App, d Deps) {
	admin := app.Group("/admin")

	admin.Post("/keys", func(c *fiber.Ctx) error {
		var body adminBody
		parseErr := parseAdminBody(c, &body)

		cred := adminCredential(c, body)
		if err := d.Keys.Authorize(cred); err != nil {
			return errForbidden
		}
		if parseErr != nil {
			return validationError("Invalid JSON body", parseErr)
		}
		if err := validate.Struct(body); err != nil {
			return validationError("Invalid key request", err)
		}

		tier, err := store.ParseTier(body.Plan)
		if err != nil {
			return validationError("Invalid plan", err)
		}

		k, err := d.Keys.Create(cred, store.NewKey{Name: body.Name, Email: body.Email, Tier: tier})
		if err != nil {
			return mapStoreError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"api_key": k.Key,
			"plan":    k.Tier,
			"message": "API key created",
		})
	})

	admin.Get("/keys", func(c *fiber.Ctx) error {
		keys, err := d.Keys.List(adminCredential(c, adminBody{}))
		if err != nil {
			return mapStoreError(err)
		}
		return c.JSON(fiber.Map{"keys": keys})
	})

	admin.Delete("/keys/:key", func(c *fiber.Ctx) error {
		var body adminBody
		_ = parseAdminBody(c, &body)

		deleted, err := d.Keys.Revoke(adminCredential(c, body), c.Params("key"))
		if err != nil {
			return mapStoreError(err)
		}
		return c.JSON(fiber.Map{"deleted": deleted})
	})

	admin.Get("/stats", func(c *fiber.Ctx) error {
		if err := d.Keys.Authorize(adminCredential(c, adminBody{})); err != nil {
			return errForbidden
		}
		out := fiber.Map{}
		if d.CacheStats != nil {
			out["cache"] = d.CacheStats()
		}
		if d.RateStats != nil {
			out["rate_limit"] = d.RateStats.Totals()
		}
		return c.JSON(out)
	})
}

func parseAdminBody(c *fiber.Ctx, body *adminBody) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(body)
}

func adminCredential(c *fiber.Ctx, body adminBody) string {
	return common.FirstNonEmpty(c.Get("X-Admin-Key"), body.AdminKey, c.Query("admin_key"))
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrForbidden) {
		return errForbidden
	}
	return err
}

func validationError(msg string, err error) error {
	return &weather.Error{
		Kind:    weather.KindValidation,
		Message: msg,
		Hint:    err.Error(),
		Err:     err,
	}
}
