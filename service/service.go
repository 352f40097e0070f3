package service

import (
	"oxbobot/pkg/logger"
	"oxbobot/storage"
)

type IServiceManager interface {
	Approval() ApprovalService
}

type service struct {
	approvalService ApprovalService
}

func New(stg storage.IStorage, notifier Notifier, secrets Secrets, log logger.ILogger) IServiceManager {
	return &service{
		approvalService: NewApprovalService(stg, notifier, secrets, log),
	}
}

func (s *service) Approval() ApprovalService {
	return s.approvalService
}
