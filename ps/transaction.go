package ps

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// Transaction identifies one saved snapshot. Id is the commit hash when
// history is enabled.
type Transaction struct {
	Id      string
	When    time.Time
	Author  string // "Name <email>" format
	Message string
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

func transactionFromCommit(c *object.Commit) Transaction {
	author := ""
	if c.Author.Name != "" || c.Author.Email != "" {
		author = fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email)
	}

	return Transaction{
		Id:      c.Hash.String(),
		When:    c.Committer.When,
		Author:  author,
		Message: strings.TrimSpace(c.Message),
	}
}

func (persistence *Persistence) LatestTransaction() Transaction {
	if !persistence.HasHistory() {
		return Transaction{}
	}

	headRef, err := persistence.repo.Head()
	if err != nil || headRef == nil {
		// No commits yet
		return Transaction{}
	}

	commit, err := persistence.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Transaction{}
	}

	return transactionFromCommit(commit)
}

// TransactionsSince lists saves at or after asof, newest first.
func (persistence *Persistence) TransactionsSince(asof time.Time) ([]Transaction, error) {
	return persistence.log(&git.LogOptions{Since: &asof})
}

// TransactionsFrom lists the given save and every save before it, newest first.
func (persistence *Persistence) TransactionsFrom(asof string) ([]Transaction, error) {
	return persistence.log(&git.LogOptions{From: plumbing.NewHash(asof)})
}

func (persistence *Persistence) log(options *git.LogOptions) ([]Transaction, error) {
	if err := persistence.ensureHistory(); err != nil {
		return nil, err
	}

	if _, err := persistence.repo.Head(); err != nil {
		return nil, nil
	}

	cIter, err := persistence.repo.Log(options)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var transactions []Transaction
	err = cIter.ForEach(func(c *object.Commit) error {
		transactions = append(transactions, transactionFromCommit(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return transactions, nil
}
