package services

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/sitecraft/backend/internal/models"
)

// Status codes used in pacs.002 reports for manually confirmed bank transfers.
const (
	StatusSettlementCompleted = "ACSC"
	StatusRejected            = "RJCT"
)

// ISO20022Service renders bank-transfer confirmations as pacs.002 status reports,
// which are stored as the settlement's confirmation payload.
type ISO20022Service struct {
	now func() time.Time
}

func NewISO20022Service() *ISO20022Service {
	return &ISO20022Service{now: time.Now}
}

// CreatePacs002 creates a pacs.002 payment status report for one transaction.
// bankReference is the sender's transfer reference from the submitted proof.
func (iso *ISO20022Service) CreatePacs002(p *models.PaymentTransaction, bankReference, status string) *pacs_v08.FIToFIPaymentStatusReportV08 {
	endToEnd := bankReference
	if endToEnd == "" {
		endToEnd = p.ID
	}

	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(truncate35(uuid.New().String())),
			CreDtTm: common.ISODateTime(iso.now().UTC()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(truncate35(p.ID))}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(truncate35(endToEnd))}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(truncate35(p.ID))}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
}

// SettlementConfirmation returns the XML document recorded when an operator
// confirms a bank transfer.
func (iso *ISO20022Service) SettlementConfirmation(p *models.PaymentTransaction, bankReference string) (string, error) {
	return iso.ConvertToXML(iso.CreatePacs002(p, bankReference, StatusSettlementCompleted))
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func truncate35(s string) string {
	if len(s) > 35 {
		return s[:35]
	}
	return s
}
