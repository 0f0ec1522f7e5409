package models

import "time"

type Step = string

const (
	StepNone Step = ""

	StepWaitingAccount         Step = "waiting_account"
	StepWaitingPassword        Step = "waiting_password"
	StepWaitingOldPassword     Step = "waiting_old_password"
	StepWaitingNewPassword     Step = "waiting_new_password"
	StepWaitingConfirmPassword Step = "waiting_confirm_password"
	StepPrescriptionUploaded   Step = "prescription_uploaded"
	StepPharmacySelected       Step = "pharmacy_selected"
	StepProcessingImage        Step = "processing_image"
)

// StepData is the per-step payload of a conversation.
// Exactly one variant is live at a time; replacing it replaces
// every step-scoped field along with it.
type StepData interface {
	Step() Step
}

type WaitingAccountData struct{}

func (WaitingAccountData) Step() Step { return StepWaitingAccount }

type WaitingPasswordData struct {
	Account string
}

func (WaitingPasswordData) Step() Step { return StepWaitingPassword }

type WaitingOldPasswordData struct{}

func (WaitingOldPasswordData) Step() Step { return StepWaitingOldPassword }

type WaitingNewPasswordData struct {
	OldPassword string
}

func (WaitingNewPasswordData) Step() Step { return StepWaitingNewPassword }

type WaitingConfirmPasswordData struct {
	OldPassword string
	NewPassword string
}

func (WaitingConfirmPasswordData) Step() Step { return StepWaitingConfirmPassword }

type PrescriptionUploadedData struct {
	MessageId string
	ImageRef  string
}

func (PrescriptionUploadedData) Step() Step { return StepPrescriptionUploaded }

type PharmacySelectedData struct {
	ImageRef   string
	PharmacyId string
}

func (PharmacySelectedData) Step() Step { return StepPharmacySelected }

type ProcessingImageData struct {
	ImageRef   string
	PharmacyId string
	StartedAt  time.Time
}

func (ProcessingImageData) Step() Step { return StepProcessingImage }

type UserState struct {
	UserId    string
	Data      StepData
	StepSetAt time.Time
}

func (s UserState) Step() Step {
	if s.Data == nil {
		return StepNone
	}
	return s.Data.Step()
}

// LoginRecord is the authoritative login state stored in the
// durable key-value store, keyed by chat user id.
type LoginRecord struct {
	MemberId    int64     `json:"member_id"`
	MemberName  string    `json:"member_name"`
	AccessToken string    `json:"access_token"`
	SetAt       time.Time `json:"set_at"`
}

// ConnectionRecord describes a live upstream subscription for a member.
// At most one record exists per member at a time.
type ConnectionRecord struct {
	UserId      string    `json:"user_id"`
	MemberId    int64     `json:"member_id"`
	SessionId   string    `json:"session_id"`
	AccessToken string    `json:"access_token"`
	ConnectedAt time.Time `json:"connected_at"`
}
