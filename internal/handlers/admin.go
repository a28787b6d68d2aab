package handlers

import (
	"net/http"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/protect"
	"github.com/aabbtree77/headless/internal/settings"
)

// SettingsPageHandler renders the headless settings form.
type SettingsPageHandler struct {
	SiteName    string
	AdminPrefix string
	Settings    settings.Store
	Guards      []protect.Guard
}

type settingsField struct {
	Name    string
	Label   string
	Checked bool
}

type settingsPage struct {
	page
	Action       string
	LogoutAction string
	OptionPage   string
	Updated      bool
	Fields       []settingsField
}

func (h *SettingsPageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	if !protect.Run(h.Guards, w, r) {
		return
	}

	rec, _, err := settings.Get(r.Context(), h.Settings)
	if err != nil {
		// A corrupt record shows as all-off; saving the form repairs it.
		logger.Warn("load settings for form", "err", err)
	}

	fields := make([]settingsField, 0, len(settings.Fields))
	for _, f := range settings.Fields {
		fields = append(fields, settingsField{
			Name:    settings.FormName(f.Key),
			Label:   f.Label,
			Checked: f.Get(rec),
		})
	}

	render(w, http.StatusOK, "settings", settingsPage{
		page:         page{Title: "Headless Setup", SiteName: h.SiteName},
		Action:       h.AdminPrefix + "/options",
		LogoutAction: h.AdminPrefix + "/logout",
		OptionPage:   settings.OptionGroup,
		Updated:      r.URL.Query().Get("settings-updated") == "true",
		Fields:       fields,
	})
}

// OptionsHandler is the settings-save endpoint the form posts to.
type OptionsHandler struct {
	AdminPrefix string
	Settings    settings.Store
	Guards      []protect.Guard
}

func (h *OptionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if !protect.Run(h.Guards, w, r) {
		return
	}

	if err := r.ParseForm(); err != nil {
		httpx.BadRequest(w, "invalid form")
		return
	}
	if r.PostForm.Get("option_page") != settings.OptionGroup {
		httpx.BadRequest(w, "unknown option page")
		return
	}

	rec := settings.FromForm(r.PostForm)
	if err := settings.Set(r.Context(), h.Settings, rec); err != nil {
		logger.Error("save settings", "err", err)
		httpx.InternalError(w, "cannot save settings")
		return
	}

	user, _ := protect.UserFromContext(r.Context())
	logger.Info("settings updated",
		"by", user.Username,
		"headless_mode", rec.HeadlessMode,
		"disable_legacy_rpc", rec.DisableLegacyRPC,
		"protect_data_api", rec.ProtectDataAPI,
		"protect_query_api", rec.ProtectQueryAPI,
	)

	http.Redirect(w, r, h.AdminPrefix+"/settings?settings-updated=true", http.StatusSeeOther)
}
