package app

import (
	"github.com/amigo-montador/montador/internal/alerts"
	"github.com/amigo-montador/montador/internal/rating"
)

// Demo participants for STORAGE=memory.
const (
	DemoStoreID     int64 = 1
	DemoAssemblerID int64 = 2
)

func seedDemo(repo *rating.MemoryRepo, store *alerts.MemoryStore) {
	repo.AddUser(rating.Participant{ID: DemoStoreID, Name: "Loja Centro", Role: rating.RoleStore})
	repo.AddUser(rating.Participant{ID: DemoAssemblerID, Name: "João Montador", Role: rating.RoleAssembler})
	store.SetContact(DemoStoreID, alerts.Contact{Name: "Loja Centro", Email: "loja@example.com"})
	store.SetContact(DemoAssemblerID, alerts.Contact{Name: "João Montador", Email: "joao@example.com"})

	repo.AddService(rating.Service{
		ID: 1, Title: "Guarda-roupa 6 portas",
		Status: rating.StatusInProgress, PaymentStatus: rating.PaymentProofSubmitted,
		Store: rating.Participant{ID: DemoStoreID}, Assembler: rating.Participant{ID: DemoAssemblerID},
	})
	repo.AddService(rating.Service{
		ID: 2, Title: "Cozinha planejada",
		Status: rating.StatusInProgress, PaymentStatus: rating.PaymentProofSubmitted,
		Store: rating.Participant{ID: DemoStoreID}, Assembler: rating.Participant{ID: DemoAssemblerID},
	})
	repo.AddService(rating.Service{
		ID: 3, Title: "Rack de sala",
		Status: rating.StatusOpen, PaymentStatus: rating.PaymentPending,
		Store: rating.Participant{ID: DemoStoreID},
	})
}
