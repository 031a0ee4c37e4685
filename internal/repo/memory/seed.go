package memory

import (
	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/domain"
)

// Demo credentials seeded into every non-empty store.
const (
	DemoAdminEmail    = "admin@hseb5.it"
	DemoAdminPassword = "admin123"
	DemoUserEmail     = "tecnico@hseb5.it"
	DemoUserPassword  = "tecnico123"
)

func (s *Store) seed() {
	now := s.stamp()
	today := s.today()

	s.companies = []domain.Company{
		{
			ID: s.nextID("company"), Name: "Officine Meccaniche Rossi S.r.l.",
			VATNumber: "01234567890", Address: "Via dell'Industria 12", City: "Brescia",
			Province: "BS", ZipCode: "25125", Country: "IT", Email: "info@omrossi.it",
			RSPP: "Ing. Marco Bianchi", CompetentDoctor: "Dott.ssa Laura Verdi", ATECOCode: "25.62.00",
			EmployeesCount: 48,
			Mansioni:       []string{"Tornitore", "Saldatore", "Magazziniere"},
			Reparti:        []string{"Produzione", "Logistica"},
			Ruoli:          []string{"Operaio", "Capo reparto"},
			CreatedAt:      now, UpdatedAt: now,
		},
		{
			ID: s.nextID("company"), Name: "Verdi Logistica S.p.A.",
			VATNumber: "09876543210", Address: "Strada Statale 11 km 4", City: "Verona",
			Province: "VR", ZipCode: "37135", Country: "IT", Email: "sicurezza@verdilogistica.it",
			RSPP: "Geom. Paolo Neri", EmployeesCount: 120,
			Mansioni:  []string{"Carrellista", "Autista", "Impiegato"},
			Reparti:   []string{"Magazzino", "Uffici"},
			Ruoli:     []string{"Operatore", "Preposto"},
			CreatedAt: now, UpdatedAt: now,
		},
	}

	noise := []domain.OutputField{
		{Name: "livello_esposizione", Type: domain.FieldNumber, Required: true, Description: "LEX,8h in dB(A)"},
		{Name: "picco", Type: domain.FieldNumber, Description: "Livello di picco in dB(C)"},
		{Name: "mansioni_esposte", Type: domain.FieldArray, Required: true, Children: []domain.OutputField{
			{Name: "mansione", Type: domain.FieldString, Required: true},
			{Name: "fascia", Type: domain.FieldString, Description: "Fascia di rischio"},
		}},
		{Name: "dpi_richiesti", Type: domain.FieldBoolean},
	}
	chemical := []domain.OutputField{
		{Name: "prodotto", Type: domain.FieldString, Required: true},
		{Name: "frasi_h", Type: domain.FieldArray, Description: "Indicazioni di pericolo"},
		{Name: "esposizione", Type: domain.FieldObject, Children: []domain.OutputField{
			{Name: "via", Type: domain.FieldString, Required: true},
			{Name: "durata_minuti", Type: domain.FieldNumber},
		}},
		{Name: "rischio_irrilevante", Type: domain.FieldBoolean, Required: true},
	}
	for _, rt := range []domain.RiskType{
		{Name: "Rumore", Description: "Esposizione a rumore (Titolo VIII Capo II)", Status: domain.RiskActive,
			InputExpectations: "Relazioni fonometriche e schede di misura", OutputStructure: noise},
		{Name: "Agenti chimici", Description: "Rischio chimico (Titolo IX)", Status: domain.RiskValidated,
			InputExpectations: "Schede di sicurezza dei prodotti utilizzati", OutputStructure: chemical},
		{Name: "Movimentazione manuale dei carichi", Status: domain.RiskDraft, OutputStructure: []domain.OutputField{}},
	} {
		rt.ID = s.nextID("risk")
		rt.Version = 1
		rt.CreatedAt, rt.UpdatedAt = now, now
		s.risks = append(s.risks, rt)
		s.snapshotRisk(rt)
	}

	rumore := int64(1)
	last := today.AddDate(-1, 0, -10).Format(domain.DateLayout)
	recent := today.AddDate(0, -2, 0).Format(domain.DateLayout)
	for _, d := range []domain.Deadline{
		{Title: "Visita medica periodica saldatori", CompanyID: 1, LastVisitDate: last, NextVisitInterval: "12"},
		{Title: "Valutazione rumore", CompanyID: 1, RiskID: &rumore, LastVisitDate: recent, NextVisitInterval: "36"},
		{Title: "Sopralluogo magazzino", CompanyID: 2, NextVisitInterval: domain.IntervalOnRequest},
	} {
		_ = d.Recompute(today)
		d.ID = s.nextID("deadline")
		d.CreatedAt, d.UpdatedAt = now, now
		s.deadlines = append(s.deadlines, d)
	}

	company := int64(1)
	dvr := s.insertDVR(domain.DVR{
		Nome: "DVR Officine Rossi 2025", Descrizione: "Aggiornamento annuale",
		Stato: domain.DVRInLavorazione, CompanyID: &company, CreatedBy: DemoAdminEmail,
	}, nil)
	for _, name := range []string{"fonometria_reparto_produzione.pdf", "sds_lubrificante.pdf"} {
		dvr.Files = append(dvr.Files, s.newFile(dvr.ID, name, now))
	}
	dvr.Files[0].RiskID = &rumore
	dvr.Files[0].Risk = domain.FileRisk{ID: rumore, Name: "Rumore"}
	dvr.Files[0].ClassificationResult = domain.Positivo
	s.dvrs[len(s.dvrs)-1] = dvr

	s.elaborations = append(s.elaborations, domain.Elaboration{
		ID: s.nextID("elaboration"), Title: "Schede di sicurezza produzione", CompanyID: 1,
		Status: domain.ElaborationBozza, CreatedAt: now, UpdatedAt: now,
	})

	for _, u := range []struct {
		name, email, password string
		role                  domain.Role
	}{
		{"Amministratore", DemoAdminEmail, DemoAdminPassword, domain.RoleAdmin},
		{"Tecnico HSE", DemoUserEmail, DemoUserPassword, domain.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), s.cost)
		if err != nil {
			continue
		}
		s.users = append(s.users, domain.User{
			ID: s.nextID("user"), Name: u.name, Email: u.email, Role: u.role,
			Active: true, PasswordHash: string(hash), CreatedAt: now,
		})
	}
}
