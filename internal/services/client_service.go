package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"
)

// --- Client DTOs ---
type CreateClientRequest struct {
	FullName       string  `json:"full_name" binding:"required"`
	DocumentNumber *string `json:"document_number"`
	PhoneNumber    *string `json:"phone_number"`
	Email          *string `json:"email"`
	Address        *string `json:"address"`
	Notes          *string `json:"notes"`
}

// UpdateClientRequest changes only the fields that are present.
type UpdateClientRequest struct {
	FullName       *string `json:"full_name"`
	DocumentNumber *string `json:"document_number"`
	PhoneNumber    *string `json:"phone_number"`
	Email          *string `json:"email"`
	Address        *string `json:"address"`
	Notes          *string `json:"notes"`
}

// --- ClientService Interface ---
type ClientService interface {
	CreateClient(ctx context.Context, req CreateClientRequest) (*models.Client, error)
	GetClientByID(ctx context.Context, clientID int64) (*models.Client, error)
	GetClients(ctx context.Context, filters models.ClientFilters) ([]models.Client, int, error)
	SearchClients(ctx context.Context, query string) ([]models.Client, error)
	// ReplaceClient overwrites every field; absent optional fields are cleared.
	ReplaceClient(ctx context.Context, clientID int64, req CreateClientRequest) (*models.Client, error)
	UpdateClient(ctx context.Context, clientID int64, req UpdateClientRequest) (*models.Client, error)
	// DeleteClient soft-deletes a client that has no open tickets.
	DeleteClient(ctx context.Context, clientID int64) error
}

// --- clientService Implementation ---
type clientService struct {
	tx         repositories.Transactor
	clientRepo repositories.ClientRepository
	ticketRepo repositories.TicketRepository
}

// NewClientService creates a new instance of ClientService.
func NewClientService(tx repositories.Transactor, repo repositories.ClientRepository, ticketRepo repositories.TicketRepository) ClientService {
	return &clientService{tx: tx, clientRepo: repo, ticketRepo: ticketRepo}
}

const clientSearchLimit = 50

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

func (s *clientService) CreateClient(ctx context.Context, req CreateClientRequest) (*models.Client, error) {
	client := &models.Client{}
	if err := applyClientFields(client, req); err != nil {
		return nil, err
	}
	if err := s.clientRepo.CreateClient(ctx, nil, client); err != nil {
		return nil, clientWriteErr(err, "create")
	}
	return client, nil
}

func (s *clientService) ReplaceClient(ctx context.Context, clientID int64, req CreateClientRequest) (*models.Client, error) {
	return s.modify(ctx, clientID, func(client *models.Client) error {
		return applyClientFields(client, req)
	})
}

func (s *clientService) UpdateClient(ctx context.Context, clientID int64, req UpdateClientRequest) (*models.Client, error) {
	return s.modify(ctx, clientID, func(client *models.Client) error {
		merged := CreateClientRequest{
			FullName:       client.FullName,
			DocumentNumber: client.DocumentNumber,
			PhoneNumber:    client.PhoneNumber,
			Email:          client.Email,
			Address:        client.Address,
			Notes:          client.Notes,
		}
		if req.FullName != nil {
			merged.FullName = *req.FullName
		}
		if req.DocumentNumber != nil {
			merged.DocumentNumber = req.DocumentNumber
		}
		if req.PhoneNumber != nil {
			merged.PhoneNumber = req.PhoneNumber
		}
		if req.Email != nil {
			merged.Email = req.Email
		}
		if req.Address != nil {
			merged.Address = req.Address
		}
		if req.Notes != nil {
			merged.Notes = req.Notes
		}
		return applyClientFields(client, merged)
	})
}

func (s *clientService) modify(ctx context.Context, clientID int64, change func(*models.Client) error) (*models.Client, error) {
	var client *models.Client
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var err error
		client, err = s.clientRepo.GetClientByIDForUpdate(ctx, tx, clientID)
		if err != nil {
			return mapRepoErr(err, "client", clientID)
		}
		if err := change(client); err != nil {
			return err
		}
		if err := s.clientRepo.UpdateClient(ctx, tx, client); err != nil {
			return clientWriteErr(err, "update")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Client updated", map[string]interface{}{"client_id": clientID})
	return client, nil
}

func (s *clientService) DeleteClient(ctx context.Context, clientID int64) error {
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		if _, err := s.clientRepo.GetClientByIDForUpdate(ctx, tx, clientID); err != nil {
			return mapRepoErr(err, "client", clientID)
		}
		open, err := s.ticketRepo.CountActiveByClient(ctx, tx, clientID)
		if err != nil {
			return fmt.Errorf("failed to count tickets of client %d: %w", clientID, err)
		}
		if open > 0 {
			return apperrors.Precondition("client", clientID,
				"client has %d open ticket(s); deliver or cancel them first", open)
		}
		if err := s.clientRepo.SoftDeleteClient(ctx, tx, clientID); err != nil {
			return mapRepoErr(err, "client", clientID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	utils.LogInfo("Client deleted", map[string]interface{}{"client_id": clientID})
	return nil
}

// applyClientFields validates req and copies it onto client.
func applyClientFields(client *models.Client, req CreateClientRequest) error {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return apperrors.Validation("full name cannot be empty")
	}
	email := utils.TrimmedPtr(req.Email)
	if email != nil {
		lower := strings.ToLower(*email)
		if !emailRegex.MatchString(lower) {
			return apperrors.Validation("email format is invalid")
		}
		email = &lower
	}
	client.FullName = name
	client.DocumentNumber = utils.TrimmedPtr(req.DocumentNumber)
	client.PhoneNumber = utils.TrimmedPtr(req.PhoneNumber)
	client.Email = email
	client.Address = utils.TrimmedPtr(req.Address)
	client.Notes = utils.TrimmedPtr(req.Notes)
	return nil
}

func clientWriteErr(err error, action string) error {
	if errors.Is(err, repositories.ErrDuplicateKey) {
		return apperrors.Validation("a client with this document number already exists").WithCause(err)
	}
	return fmt.Errorf("failed to %s client: %w", action, err)
}

func (s *clientService) GetClientByID(ctx context.Context, clientID int64) (*models.Client, error) {
	client, err := s.clientRepo.GetClientByID(ctx, nil, clientID)
	if err != nil {
		return nil, mapRepoErr(err, "client", clientID)
	}
	return client, nil
}

func (s *clientService) GetClients(ctx context.Context, filters models.ClientFilters) ([]models.Client, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	clients, total, err := s.clientRepo.GetClients(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get clients: %w", err)
	}
	return clients, total, nil
}

// SearchClients matches name, phone or document number and returns the first matches.
func (s *clientService) SearchClients(ctx context.Context, query string) ([]models.Client, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Validation("search query cannot be empty")
	}
	clients, _, err := s.clientRepo.GetClients(ctx, models.ClientFilters{Search: &query, Page: 1, PageSize: clientSearchLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to search clients: %w", err)
	}
	return clients, nil
}
