// Package vectorstore stores transcript chunk embeddings for similarity search.
//
// Store is the contract the pipeline, Q&A and deletion code depend on. Weaviate
// is the production adapter; Memory keeps vectors in process and backs local
// runs without a vector server as well as tests.
package vectorstore
