package services

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/novelia/backend/internal/models"
)

// DisbursementService builds the ISO 20022 messages handed to the bank
// payout rail for paid withdrawal requests.
type DisbursementService struct {
	platformBIC string
}

func NewDisbursementService() *DisbursementService {
	platformBIC := "NOVELIA1"
	if env := os.Getenv("PLATFORM_BIC"); env != "" {
		platformBIC = env
	}
	return &DisbursementService{platformBIC: platformBIC}
}

// CreateCreditTransfer builds a pacs.008 FIToFICustomerCreditTransfer
// for one paid withdrawal. The amount and the destination bank details
// are the ones frozen into the request at creation time.
func (ds *DisbursementService) CreateCreditTransfer(request *models.GoldWithdrawalRequest) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if request.Status != models.WithdrawalPaid {
		return nil, fmt.Errorf("withdrawal %s is %s, not paid", request.ID, request.Status)
	}

	msgID := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := float64(request.NetAmount)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("IDR"),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(request.ID)}[0],
					EndToEndId: common.Max35Text(request.ID),
					TxId:       &[]common.Max35Text{common.Max35Text(request.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("IDR"),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(ds.platformBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("Novelia Platform")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(request.BankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(request.AccountHolderName)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreateStatusReport builds a pacs.002 status report for a withdrawal,
// used by the payout worker to record the rail's accept/reject outcome.
func (ds *DisbursementService) CreateStatusReport(request *models.GoldWithdrawalRequest, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgID := uuid.New().String()
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(request.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(request.ID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(request.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0], // ACCP, RJCT, ACSC
			},
		},
	}

	return doc, nil
}

// ConvertToXML marshals an ISO 20022 document for the payout queue.
func (ds *DisbursementService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
