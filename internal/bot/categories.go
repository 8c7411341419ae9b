package bot

import "github.com/resolvehub/songra/internal/api"

// categoryInfo is the user-facing catalogue shown when picking a domain.
type categoryInfo struct {
	ID          api.Category
	Name        string
	Description string
	Examples    []string
}

var categoryCatalogue = []categoryInfo{
	{
		ID:          api.CategoryAgriculture,
		Name:        "Agriculture",
		Description: "Cultures, bétail, irrigation, maladies",
		Examples:    []string{"Maladies des plantes", "Irrigation", "Fertilisation", "Élevage"},
	},
	{
		ID:          api.CategoryElevage,
		Name:        "Élevage",
		Description: "Santé et gestion des animaux",
		Examples:    []string{"Chaleur bétail", "Vache malade", "Poules malades", "Vermifuge"},
	},
	{
		ID:          api.CategorySOSAccident,
		Name:        "SOS Accident",
		Description: "Premiers gestes en cas d'accident",
		Examples:    []string{"Blessure au champ", "Coupure", "Brûlure", "Chute"},
	},
	{
		ID:          api.CategoryCybersecurity,
		Name:        "Cybersécurité",
		Description: "Arnaques, protection des données",
		Examples:    []string{"Arnaque Mobile Money", "Mot de passe", "Phishing", "Sécurité"},
	},
}

func categoryByName(name string) (categoryInfo, bool) {
	for _, c := range categoryCatalogue {
		if c.Name == name || string(c.ID) == name {
			return c, true
		}
	}
	return categoryInfo{}, false
}

func categoryLabel(id api.Category) string {
	for _, c := range categoryCatalogue {
		if c.ID == id {
			return c.Name
		}
	}
	return string(id)
}

func statusLabel(s api.TicketStatus) string {
	switch s {
	case api.StatusOpen:
		return "En attente"
	case api.StatusAssigned:
		return "En traitement"
	case api.StatusResolved:
		return "Résolu"
	}
	return string(s)
}

func urgencyLabel(u api.Urgency) string {
	switch u {
	case api.UrgencyHigh:
		return "Urgente"
	case api.UrgencyMedium:
		return "Moyenne"
	default:
		return "Normale"
	}
}
