package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(CreateRaffleCollections, DropRaffleCollections)
}

// CreateRaffleCollections creates the raffles, sales and saved_tickets
// collections. Collections that already exist are left untouched.
func CreateRaffleCollections(app core.App) error {
	raffles, err := app.FindCollectionByNameOrId("raffles")
	if err != nil {
		raffles = core.NewBaseCollection("raffles")
		raffles.Fields.Add(
			&core.TextField{Name: "title", Required: true, Max: 200},
			&core.TextField{Name: "description"},
			&core.TextField{Name: "prize"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "completed", "cancelled"},
			},
			&core.NumberField{Name: "price_per_ticket", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "total_tickets", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "tickets_sold", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.JSONField{Name: "winner"},
			&core.DateField{Name: "draw_date"},
			&core.DateField{Name: "created_at", Required: true},
		)
		raffles.AddIndex("idx_raffles_created_at", false, "created_at", "")

		if err := app.Save(raffles); err != nil {
			return err
		}
	}

	if _, err := app.FindCollectionByNameOrId("sales"); err != nil {
		sales := core.NewBaseCollection("sales")
		sales.Fields.Add(
			&core.RelationField{
				Name:          "raffle",
				Required:      true,
				MaxSelect:     1,
				CollectionId:  raffles.Id,
				CascadeDelete: true,
			},
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "email", Required: true},
			&core.TextField{Name: "phone"},
			// not required: a required number field rejects ticket 0000
			&core.NumberField{
				Name:    "ticket_number",
				OnlyInt: true,
				Min:     types.Pointer(0.0),
				Max:     types.Pointer(9999.0),
			},
			&core.TextField{Name: "code", Required: true, Min: 6, Max: 6, Pattern: `^\d{6}$`},
			&core.TextField{Name: "payment_method"},
			&core.TextField{Name: "registered_by"},
			&core.DateField{Name: "bought_at", Required: true},
		)
		sales.AddIndex("idx_sales_raffle_ticket", true, "raffle, ticket_number", "")
		sales.AddIndex("idx_sales_code", true, "code", "")

		if err := app.Save(sales); err != nil {
			return err
		}
	}

	if _, err := app.FindCollectionByNameOrId("saved_tickets"); err != nil {
		saved := core.NewBaseCollection("saved_tickets")
		saved.Fields.Add(
			&core.TextField{Name: "owner_key", Required: true},
			&core.TextField{Name: "code", Required: true},
			&core.NumberField{Name: "ticket_number", OnlyInt: true},
			&core.TextField{Name: "raffle"},
			&core.TextField{Name: "raffle_title"},
			&core.TextField{Name: "name"},
			&core.TextField{Name: "email"},
			&core.TextField{Name: "phone"},
			&core.DateField{Name: "bought_at"},
			&core.DateField{Name: "saved_at", Required: true},
		)
		saved.AddIndex("idx_saved_tickets_owner_code", true, "owner_key, code", "")

		if err := app.Save(saved); err != nil {
			return err
		}
	}

	return nil
}

func DropRaffleCollections(app core.App) error {
	for _, name := range []string{"saved_tickets", "sales", "raffles"} {
		collection, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(collection); err != nil {
			return err
		}
	}
	return nil
}
